// services/ledger.go
package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"reward-ledger/models"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// conditionalAppendSQL inserts the record only when the actor has no record
// newer than the cooldown threshold. Check and insert are one statement, so the
// store evaluates and commits them as a unit. Casts keep PostgreSQL from typing
// the bare select-list parameters as text.
const conditionalAppendSQL = `
INSERT INTO action_records (actor_id, occurred_at, reward_magnitude, is_gift, gift_recipient_id)
SELECT CAST(? AS VARCHAR(64)), CAST(? AS BIGINT), CAST(? AS INTEGER), CAST(? AS BOOLEAN), CAST(? AS VARCHAR(64))
WHERE NOT EXISTS (
	SELECT 1 FROM action_records
	WHERE actor_id = ? AND occurred_at > ?
)`

const lastActionSQL = `SELECT MAX(occurred_at) FROM action_records WHERE actor_id = ?`

// Claim is one attempt to record an action for ActorID.
type Claim struct {
	ActorID         string
	Reward          Reward
	GiftRecipientID string // empty when the reward is kept
}

func (c Claim) IsGift() bool {
	return c.GiftRecipientID != ""
}

func (c Claim) Validate() error {
	if strings.TrimSpace(c.ActorID) == "" {
		return ErrInvalidActor
	}
	if c.IsGift() && c.GiftRecipientID == c.ActorID {
		return ErrInvalidGift
	}
	if c.Reward.Magnitude < 0 {
		return fmt.Errorf("reward magnitude must not be negative, got %d", c.Reward.Magnitude)
	}
	return nil
}

// ClaimResult is either a recorded action or a cooldown rejection.
type ClaimResult struct {
	Claimed   bool
	Record    *models.ActionRecord
	Remaining time.Duration // set when rejected
}

// CooldownStatus is the advisory view of an actor's cooldown.
type CooldownStatus struct {
	LastActionAt *time.Time
	Ready        bool
	Remaining    time.Duration
}

// Ledger owns action_records. TryClaimAndRecord is the only write path.
type Ledger struct {
	DB       *gorm.DB
	clock    clockwork.Clock
	cooldown time.Duration
	txOpts   []*sql.TxOptions
}

// maxClaimAttempts bounds re-runs of the conditional append after a
// serialization failure. A rejection is never re-run.
const maxClaimAttempts = 3

func NewLedger(db *gorm.DB, clock clockwork.Clock, cooldown time.Duration) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ledger{
		DB:       db,
		clock:    clock,
		cooldown: cooldown,
		txOpts:   claimTxOptions(db.Dialector.Name()),
	}
}

// claimTxOptions: PostgreSQL's default READ COMMITTED lets two NOT EXISTS
// checks pass concurrently; SERIALIZABLE turns one of them into a 40001.
// SQLite takes the write lock at the start of the INSERT statement.
func claimTxOptions(dialect string) []*sql.TxOptions {
	if dialect == "postgres" {
		return []*sql.TxOptions{{Isolation: sql.LevelSerializable}}
	}
	return nil
}

func (l *Ledger) Cooldown() time.Duration {
	return l.cooldown
}

// TryClaimAndRecord records claim if the actor is outside its cooldown window.
// A rejection is a result, not an error. Errors are validation errors or *StoreError.
func (l *Ledger) TryClaimAndRecord(ctx context.Context, claim Claim) (ClaimResult, error) {
	if err := claim.Validate(); err != nil {
		return ClaimResult{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxClaimAttempts; attempt++ {
		res, err := l.claimOnce(ctx, claim)
		switch {
		case err == nil:
			return res, nil
		case isSerializationFailure(err):
			lastErr = err
			logrus.WithFields(logrus.Fields{
				"actor_id": claim.ActorID,
				"attempt":  attempt,
			}).Debug("[LEDGER] serialization failure, re-running claim")
			if ctx.Err() != nil {
				return ClaimResult{}, storeError("claim action", ctx.Err())
			}
		case isDuplicateKey(err):
			return l.resolveConflict(ctx, claim.ActorID)
		default:
			return ClaimResult{}, storeError("claim action", err)
		}
	}
	return ClaimResult{}, storeError("claim action",
		fmt.Errorf("gave up after %d serialization failures: %w", maxClaimAttempts, lastErr))
}

// claimOnce runs the conditional append in one transaction.
func (l *Ledger) claimOnce(ctx context.Context, claim Claim) (ClaimResult, error) {
	now := l.clock.Now().UTC()
	rec := models.ActionRecord{
		ActorID:         claim.ActorID,
		OccurredAt:      models.ToMillis(now),
		RewardMagnitude: claim.Reward.Magnitude,
		IsGift:          claim.IsGift(),
	}
	if rec.IsGift {
		recipient := claim.GiftRecipientID
		rec.GiftRecipientID = &recipient
	}
	threshold := rec.OccurredAt - l.cooldown.Milliseconds()

	var result ClaimResult
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(conditionalAppendSQL,
			rec.ActorID, rec.OccurredAt, rec.RewardMagnitude, rec.IsGift, rec.GiftRecipientID,
			rec.ActorID, threshold,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			result = ClaimResult{Claimed: true, Record: &rec}
			return nil
		}

		last, err := lastActionAt(tx, rec.ActorID)
		if err != nil {
			return err
		}
		result = ClaimResult{Remaining: l.remaining(now, last)}
		return nil
	}, l.txOpts...)
	return result, err
}

// resolveConflict decides a claim that hit a duplicate natural key. It is a
// rejection only if the ledger now holds a record inside the window.
func (l *Ledger) resolveConflict(ctx context.Context, actorID string) (ClaimResult, error) {
	last, err := l.QueryCooldown(ctx, actorID)
	if err != nil {
		return ClaimResult{}, err
	}
	now := l.clock.Now().UTC()
	if last == nil || now.Sub(*last) >= l.cooldown {
		return ClaimResult{}, storeError("claim action",
			fmt.Errorf("duplicate key for %s without a record inside the cooldown window", actorID))
	}
	logrus.WithField("actor_id", actorID).Debug("[LEDGER] concurrent claim won the race")
	return ClaimResult{Remaining: l.remaining(now, last)}, nil
}

// QueryCooldown returns the actor's last recorded action time, or nil if the
// actor never acted. Advisory only: never gate a write on it.
func (l *Ledger) QueryCooldown(ctx context.Context, actorID string) (*time.Time, error) {
	last, err := lastActionAt(l.DB.WithContext(ctx), actorID)
	if err != nil {
		return nil, storeError("query cooldown", err)
	}
	return last, nil
}

// Status reports whether the actor could act now and, if not, how long to wait.
func (l *Ledger) Status(ctx context.Context, actorID string) (CooldownStatus, error) {
	last, err := l.QueryCooldown(ctx, actorID)
	if err != nil {
		return CooldownStatus{}, err
	}
	if last == nil {
		return CooldownStatus{Ready: true}, nil
	}
	now := l.clock.Now().UTC()
	if now.Sub(*last) >= l.cooldown {
		return CooldownStatus{LastActionAt: last, Ready: true}, nil
	}
	return CooldownStatus{LastActionAt: last, Remaining: l.remaining(now, last)}, nil
}

// remaining is cooldown-(now-last) truncated to whole seconds and never below
// one second. A nil last yields the full cooldown.
func (l *Ledger) remaining(now time.Time, last *time.Time) time.Duration {
	left := l.cooldown
	if last != nil {
		left = l.cooldown - now.Sub(*last)
	}
	left = left.Truncate(time.Second)
	if left < time.Second {
		left = time.Second
	}
	return left
}

func lastActionAt(db *gorm.DB, actorID string) (*time.Time, error) {
	var last sql.NullInt64
	if err := db.Raw(lastActionSQL, actorID).Scan(&last).Error; err != nil {
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	t := time.UnixMilli(last.Int64).UTC()
	return &t, nil
}
