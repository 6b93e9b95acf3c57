// services/action_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"reward-ledger/models"

	"github.com/sirupsen/logrus"
)

// ActionRequest is one incoming "cast" from the dispatcher. Target fields are
// empty when the actor keeps the reward.
type ActionRequest struct {
	RequestID string

	ActorID          string
	ActorDisplayName string
	ActorDisplayTag  string

	TargetID          string
	TargetDisplayName string
	TargetDisplayTag  string
}

func (r ActionRequest) IsGift() bool {
	return strings.TrimSpace(r.TargetID) != ""
}

type OutcomeKind string

const (
	OutcomeRecorded       OutcomeKind = "recorded"
	OutcomeCooldown       OutcomeKind = "cooldown_rejected"
	OutcomeInvalidGift    OutcomeKind = "invalid_gift"
	OutcomeInvalidRequest OutcomeKind = "invalid_request"
	OutcomeStoreError     OutcomeKind = "store_error"
)

// ActionOutcome is the terminal state of one request.
type ActionOutcome struct {
	Kind       OutcomeKind
	Reward     Reward
	Record     *models.ActionRecord
	CreditedTo string
	Remaining  time.Duration
	Err        error
	// DirectoryErr is set when the claim was recorded but a profile upsert failed.
	DirectoryErr error
}

// RemainingSeconds is the cooldown left, in whole seconds.
func (o ActionOutcome) RemainingSeconds() int64 {
	return int64(o.Remaining / time.Second)
}

type RewardSource interface {
	Generate() Reward
}

type ClaimRecorder interface {
	TryClaimAndRecord(ctx context.Context, claim Claim) (ClaimResult, error)
}

type ProfileWriter interface {
	Upsert(ctx context.Context, profile models.ActorProfile) error
}

// ActionService runs Received → RewardComputed → ClaimAttempted →
// {Recorded | CooldownRejected | StoreError} for each request. It never retries.
type ActionService struct {
	rewards      RewardSource
	ledger       ClaimRecorder
	directory    ProfileWriter
	storeTimeout time.Duration
}

func NewActionService(rewards RewardSource, ledger ClaimRecorder, directory ProfileWriter, storeTimeout time.Duration) *ActionService {
	return &ActionService{
		rewards:      rewards,
		ledger:       ledger,
		directory:    directory,
		storeTimeout: storeTimeout,
	}
}

// storeContext bounds a store call by the store timeout but ignores the
// caller's cancellation: an abandoned request must not abort a write mid-flight.
func (s *ActionService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
}

func (s *ActionService) Perform(ctx context.Context, req ActionRequest) ActionOutcome {
	actorID := strings.TrimSpace(req.ActorID)
	targetID := strings.TrimSpace(req.TargetID)
	log := logrus.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"actor_id":   actorID,
	})

	// Received
	if actorID == "" {
		return ActionOutcome{Kind: OutcomeInvalidRequest, Err: ErrInvalidActor}
	}
	if targetID == actorID {
		log.Info("[ACTION] 🚫 self-gift rejected")
		return ActionOutcome{Kind: OutcomeInvalidGift, Err: ErrInvalidGift}
	}

	// RewardComputed
	reward := s.rewards.Generate()

	// ClaimAttempted
	claimCtx, cancel := s.storeContext(ctx)
	res, err := s.ledger.TryClaimAndRecord(claimCtx, Claim{
		ActorID:         actorID,
		Reward:          reward,
		GiftRecipientID: targetID,
	})
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidGift):
			return ActionOutcome{Kind: OutcomeInvalidGift, Err: err}
		case errors.Is(err, ErrInvalidActor):
			return ActionOutcome{Kind: OutcomeInvalidRequest, Err: err}
		}
		var storeErr *StoreError
		if !errors.As(err, &storeErr) {
			err = storeError("claim action", err)
		}
		log.WithError(err).Error("[ACTION] ❌ claim failed, reporting transient error")
		return ActionOutcome{Kind: OutcomeStoreError, Reward: reward, Err: err}
	}
	if !res.Claimed {
		log.WithField("remaining", res.Remaining).Debug("[ACTION] ⏳ cooldown active")
		return ActionOutcome{Kind: OutcomeCooldown, Remaining: res.Remaining}
	}

	// Recorded
	out := ActionOutcome{
		Kind:       OutcomeRecorded,
		Reward:     reward,
		Record:     res.Record,
		CreditedTo: res.Record.CreditedTo(),
	}
	profiles := []models.ActorProfile{{
		ActorID:     actorID,
		DisplayName: req.ActorDisplayName,
		DisplayTag:  req.ActorDisplayTag,
	}}
	if targetID != "" {
		profiles = append(profiles, models.ActorProfile{
			ActorID:     targetID,
			DisplayName: req.TargetDisplayName,
			DisplayTag:  req.TargetDisplayTag,
		})
	}
	var dirErrs []error
	for _, p := range profiles {
		upCtx, cancel := s.storeContext(ctx)
		if err := s.directory.Upsert(upCtx, p); err != nil {
			dirErrs = append(dirErrs, err)
			log.WithError(err).WithField("profile_id", p.ActorID).Error("[ACTION] ⚠️ action recorded but profile upsert failed")
		}
		cancel()
	}
	out.DirectoryErr = errors.Join(dirErrs...)

	log.WithFields(logrus.Fields{
		"tier":        reward.Tier,
		"magnitude":   reward.Magnitude,
		"credited_to": out.CreditedTo,
	}).Info("[ACTION] 🎣 action recorded")
	return out
}
