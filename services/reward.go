// services/reward.go
package services

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"reward-ledger/models"
)

// TierBand assigns a selection weight and an inclusive magnitude range to a tier.
type TierBand struct {
	Tier   models.Tier
	Weight int
	Min    int
	Max    int
}

// DefaultTierBands: weights sum to 100, bands are contiguous from 1 to 750.
var DefaultTierBands = []TierBand{
	{Tier: models.TierNone, Weight: 9, Min: 0, Max: 0},
	{Tier: models.TierLow, Weight: 60, Min: 1, Max: 29},
	{Tier: models.TierMid, Weight: 20, Min: 30, Max: 99},
	{Tier: models.TierHigh, Weight: 10, Min: 100, Max: 399},
	{Tier: models.TierTop, Weight: 1, Min: 400, Max: 750},
}

// Reward is a generated, not yet recorded, outcome.
type Reward struct {
	Tier      models.Tier `json:"tier"`
	Magnitude int         `json:"magnitude"`
}

// RewardGenerator draws rewards from a weighted band table. It has no state
// beyond its random source and is safe for concurrent use.
type RewardGenerator struct {
	bands []TierBand
	total int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRewardGenerator validates bands and wraps src. A nil src is seeded from crypto/rand.
func NewRewardGenerator(src rand.Source, bands []TierBand) (*RewardGenerator, error) {
	if err := ValidateTierBands(bands); err != nil {
		return nil, err
	}
	if src == nil {
		seed, err := newSeed()
		if err != nil {
			return nil, err
		}
		src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	}
	total := 0
	for _, b := range bands {
		total += b.Weight
	}
	cp := make([]TierBand, len(bands))
	copy(cp, bands)
	return &RewardGenerator{bands: cp, total: total, rng: rand.New(src)}, nil
}

func newSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// ValidateTierBands checks weights and that bands ascend without overlap,
// so that a magnitude maps back to exactly one tier.
func ValidateTierBands(bands []TierBand) error {
	if len(bands) == 0 {
		return errors.New("tier bands: at least one band is required")
	}
	total := 0
	prevMax := -1
	seen := make(map[models.Tier]bool, len(bands))
	for i, b := range bands {
		if !b.Tier.Valid() {
			return fmt.Errorf("tier bands: unknown tier %q", b.Tier)
		}
		if seen[b.Tier] {
			return fmt.Errorf("tier bands: duplicate tier %q", b.Tier)
		}
		seen[b.Tier] = true
		if b.Weight < 0 {
			return fmt.Errorf("tier bands: negative weight for %q", b.Tier)
		}
		if b.Min < 0 || b.Max < b.Min {
			return fmt.Errorf("tier bands: invalid range %d-%d for %q", b.Min, b.Max, b.Tier)
		}
		if b.Tier == models.TierNone && (b.Min != 0 || b.Max != 0) {
			return errors.New("tier bands: none tier must have magnitude 0")
		}
		if b.Tier != models.TierNone && b.Min == 0 {
			return fmt.Errorf("tier bands: %q overlaps the none tier", b.Tier)
		}
		if i > 0 && b.Min <= prevMax {
			return fmt.Errorf("tier bands: %q overlaps or precedes the previous band", b.Tier)
		}
		prevMax = b.Max
		total += b.Weight
	}
	if total <= 0 {
		return errors.New("tier bands: total weight must be positive")
	}
	return nil
}

// Generate picks a tier with probability weight/total, then a magnitude
// uniformly from that tier's range.
func (g *RewardGenerator) Generate() Reward {
	g.mu.Lock()
	defer g.mu.Unlock()

	pick := g.rng.IntN(g.total)
	band := g.bands[len(g.bands)-1]
	for _, b := range g.bands {
		if pick < b.Weight {
			band = b
			break
		}
		pick -= b.Weight
	}

	magnitude := band.Min
	if band.Max > band.Min {
		magnitude = band.Min + g.rng.IntN(band.Max-band.Min+1)
	}
	return Reward{Tier: band.Tier, Magnitude: magnitude}
}

// Bands returns a copy of the generator's band table.
func (g *RewardGenerator) Bands() []TierBand {
	cp := make([]TierBand, len(g.bands))
	copy(cp, g.bands)
	return cp
}

// TierFor re-derives the tier of a recorded magnitude. ok is false when the
// magnitude falls outside every band.
func TierFor(bands []TierBand, magnitude int) (tier models.Tier, ok bool) {
	for _, b := range bands {
		if magnitude >= b.Min && magnitude <= b.Max {
			return b.Tier, true
		}
	}
	return "", false
}
