// services/snapshot_service.go
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reward-ledger/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SnapshotUploader archives a rendered snapshot. utils.R2Uploader implements it.
type SnapshotUploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// Snapshot is a point-in-time copy of the leaderboard.
type Snapshot struct {
	ID          string           `json:"id"`
	TakenAt     time.Time        `json:"taken_at"`
	GlobalTotal int64            `json:"global_total"`
	ObjectKey   string           `json:"object_key,omitempty"`
	Rows        []LeaderboardRow `json:"rows"`
}

// SnapshotService copies the leaderboard into leaderboard_snapshots and,
// when an uploader is set, archives it as JSON. It only reads the ledger.
type SnapshotService struct {
	DB       *gorm.DB
	bands    []TierBand
	uploader SnapshotUploader
	clock    clockwork.Clock
	limit    int
	readOpts []*sql.TxOptions
}

func NewSnapshotService(db *gorm.DB, bands []TierBand, uploader SnapshotUploader, clock clockwork.Clock, limit int) *SnapshotService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SnapshotService{
		DB:       db,
		bands:    bands,
		uploader: uploader,
		clock:    clock,
		limit:    clampLimit(limit),
		readOpts: snapshotTxOptions(db.Dialector.Name()),
	}
}

// snapshotTxOptions gives the capture one read snapshot. PostgreSQL's default
// READ COMMITTED would take a fresh snapshot per statement; SQLite transactions
// already read from a single snapshot.
func snapshotTxOptions(dialect string) []*sql.TxOptions {
	if dialect == "postgres" {
		return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead, ReadOnly: true}}
	}
	return nil
}

// Capture takes one snapshot. Leaderboard and global total are read from one
// transaction snapshot so they describe the same ledger state. An upload failure
// is logged and the snapshot is still persisted without an object key.
func (s *SnapshotService) Capture(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		ID:      uuid.NewString(),
		TakenAt: s.clock.Now().UTC(),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		agg := NewAggregator(tx, s.bands)
		rows, err := agg.Leaderboard(ctx, s.limit)
		if err != nil {
			return err
		}
		total, err := agg.GlobalTotal(ctx)
		if err != nil {
			return err
		}
		snap.Rows = rows
		snap.GlobalTotal = total
		return nil
	}, s.readOpts...)
	if err != nil {
		return nil, storeError("capture snapshot", unwrapStoreError(err))
	}

	if s.uploader != nil {
		key := fmt.Sprintf("snapshots/%s/%s.json", snap.TakenAt.Format("2006/01/02"), snap.ID)
		body, err := json.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
		if err := s.uploader.PutObject(ctx, key, body, "application/json"); err != nil {
			logrus.WithError(err).WithField("snapshot_id", snap.ID).Warn("[SNAPSHOT] ⚠️ archive upload failed")
		} else {
			snap.ObjectKey = key
		}
	}

	if len(snap.Rows) == 0 {
		return snap, nil
	}
	records := make([]models.LeaderboardSnapshot, len(snap.Rows))
	for i, r := range snap.Rows {
		records[i] = models.LeaderboardSnapshot{
			ID:            uuid.NewString(),
			SnapshotID:    snap.ID,
			Rank:          int(r.Rank),
			ActorID:       r.ActorID,
			DisplayName:   r.Handle(),
			CreditedTotal: r.CreditedTotal,
			GlobalTotal:   snap.GlobalTotal,
			ObjectKey:     snap.ObjectKey,
			TakenAt:       snap.TakenAt,
		}
	}
	if err := s.DB.WithContext(ctx).Create(&records).Error; err != nil {
		return nil, storeError("persist snapshot", err)
	}

	logrus.WithFields(logrus.Fields{
		"snapshot_id":  snap.ID,
		"rows":         len(records),
		"global_total": snap.GlobalTotal,
	}).Info("[SNAPSHOT] ✅ leaderboard snapshot captured")
	return snap, nil
}

// Latest returns the most recent persisted snapshot, or nil if none exists.
func (s *SnapshotService) Latest(ctx context.Context) (*Snapshot, error) {
	db := s.DB.WithContext(ctx)

	var newest models.LeaderboardSnapshot
	err := db.Order("taken_at DESC").Order("snapshot_id DESC").First(&newest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("latest snapshot", err)
	}

	var records []models.LeaderboardSnapshot
	if err := db.Where("snapshot_id = ?", newest.SnapshotID).Order("rank ASC").Order("actor_id ASC").Find(&records).Error; err != nil {
		return nil, storeError("latest snapshot", err)
	}

	snap := &Snapshot{
		ID:          newest.SnapshotID,
		TakenAt:     newest.TakenAt.UTC(),
		GlobalTotal: newest.GlobalTotal,
		ObjectKey:   newest.ObjectKey,
		Rows:        make([]LeaderboardRow, len(records)),
	}
	for i, r := range records {
		snap.Rows[i] = LeaderboardRow{
			Rank:          int64(r.Rank),
			ActorID:       r.ActorID,
			DisplayName:   r.DisplayName,
			CreditedTotal: r.CreditedTotal,
		}
	}
	return snap, nil
}

func unwrapStoreError(err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Err
	}
	return err
}
