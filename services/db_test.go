package services

import (
	"path/filepath"
	"testing"
	"time"

	"reward-ledger/config"
	"reward-ledger/models"
	"reward-ledger/utils"

	"gorm.io/gorm"
)

var epoch = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := utils.OpenDatabase(config.DriverSQLite, utils.SQLiteDSN(path))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := utils.MigrateDatabase(db); err != nil {
		t.Fatalf("migrate database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func closeDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
}

// seedRecord writes a record directly, bypassing the cooldown gate.
func seedRecord(t *testing.T, db *gorm.DB, actorID string, offset time.Duration, magnitude int, recipient string) {
	t.Helper()
	rec := models.ActionRecord{
		ActorID:         actorID,
		OccurredAt:      models.ToMillis(epoch.Add(offset)),
		RewardMagnitude: magnitude,
	}
	if recipient != "" {
		rec.IsGift = true
		rec.GiftRecipientID = &recipient
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func seedProfile(t *testing.T, db *gorm.DB, actorID, name, tag string) {
	t.Helper()
	p := models.ActorProfile{ActorID: actorID, DisplayName: name, DisplayTag: tag}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func countRecords(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.ActionRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count records: %v", err)
	}
	return n
}
