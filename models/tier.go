// models/tier.go
package models

// Tier is the reward category an action lands in
type Tier string

const (
	TierNone Tier = "none"
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
	TierTop  Tier = "top"
)

// AllTiers lists tiers in ascending magnitude order.
var AllTiers = []Tier{TierNone, TierLow, TierMid, TierHigh, TierTop}

func (t Tier) Valid() bool {
	switch t {
	case TierNone, TierLow, TierMid, TierHigh, TierTop:
		return true
	}
	return false
}
