// services/directory.go
package services

import (
	"context"
	"errors"
	"strings"

	"reward-ledger/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IdentityDirectory maps actor ids to their latest display metadata.
type IdentityDirectory struct {
	DB *gorm.DB
}

func NewIdentityDirectory(db *gorm.DB) *IdentityDirectory {
	return &IdentityDirectory{DB: db}
}

var profileConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "actor_id"}},
	DoUpdates: clause.AssignmentColumns([]string{"display_name", "display_tag", "updated_at"}),
}

// Upsert creates or refreshes one profile. Last write wins; an existing row is never an error.
func (d *IdentityDirectory) Upsert(ctx context.Context, profile models.ActorProfile) error {
	profile, err := normalizeProfile(profile)
	if err != nil {
		return err
	}
	if err := d.DB.WithContext(ctx).Clauses(profileConflict).Create(&profile).Error; err != nil {
		return storeError("upsert profile", err)
	}
	return nil
}

// UpsertMany refreshes a batch of profiles in one statement. Profiles without
// an actor id are skipped; the returned count is the number written.
func (d *IdentityDirectory) UpsertMany(ctx context.Context, profiles []models.ActorProfile) (int, error) {
	batch := make([]models.ActorProfile, 0, len(profiles))
	seen := make(map[string]int, len(profiles))
	for _, p := range profiles {
		p, err := normalizeProfile(p)
		if err != nil {
			continue
		}
		// ON CONFLICT cannot touch the same row twice in one statement; keep the last.
		if i, ok := seen[p.ActorID]; ok {
			batch[i] = p
			continue
		}
		seen[p.ActorID] = len(batch)
		batch = append(batch, p)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := d.DB.WithContext(ctx).Clauses(profileConflict).Create(&batch).Error; err != nil {
		return 0, storeError("upsert profiles", err)
	}
	return len(batch), nil
}

func normalizeProfile(p models.ActorProfile) (models.ActorProfile, error) {
	p.ActorID = strings.TrimSpace(p.ActorID)
	if p.ActorID == "" {
		return p, ErrInvalidActor
	}
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if p.DisplayName == "" {
		p.DisplayName = p.ActorID
	}
	p.DisplayTag = strings.TrimSpace(p.DisplayTag)
	return p, nil
}

// Lookup returns a profile, or nil when the actor is unknown.
func (d *IdentityDirectory) Lookup(ctx context.Context, actorID string) (*models.ActorProfile, error) {
	var p models.ActorProfile
	err := d.DB.WithContext(ctx).Where("actor_id = ?", actorID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("lookup profile", err)
	}
	return &p, nil
}
