// models/action_record.go
package models

import "time"

// ActionRecord is one successful, cooldown-gated action. Rows are append-only:
// the ledger creates them once and nothing updates or deletes them.
type ActionRecord struct {
	ActorID         string  `gorm:"primaryKey;type:varchar(64);not null" json:"actor_id"`
	OccurredAt      int64   `gorm:"primaryKey;not null" json:"occurred_at"` // unix millis, UTC
	RewardMagnitude int     `gorm:"not null;check:reward_magnitude >= 0" json:"reward_magnitude"`
	IsGift          bool    `gorm:"not null;default:false" json:"is_gift"`
	GiftRecipientID *string `gorm:"type:varchar(64);index" json:"gift_recipient_id,omitempty"`
}

func (ActionRecord) TableName() string {
	return "action_records"
}

// Time returns OccurredAt as a UTC time.
func (r ActionRecord) Time() time.Time {
	return time.UnixMilli(r.OccurredAt).UTC()
}

// CreditedTo is the actor that owns the reward after gift redirection.
func (r ActionRecord) CreditedTo() string {
	if r.IsGift && r.GiftRecipientID != nil {
		return *r.GiftRecipientID
	}
	return r.ActorID
}

func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}
