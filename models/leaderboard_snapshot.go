// models/leaderboard_snapshot.go
package models

import "time"

// LeaderboardSnapshot is one ranked row captured by the snapshot job.
// Rows sharing a SnapshotID were written in the same transaction.
type LeaderboardSnapshot struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SnapshotID    string    `gorm:"type:varchar(36);index;not null" json:"snapshot_id"`
	Rank          int       `gorm:"not null" json:"rank"`
	ActorID       string    `gorm:"type:varchar(64);not null" json:"actor_id"`
	DisplayName   string    `gorm:"type:varchar(255)" json:"display_name"`
	CreditedTotal int64     `gorm:"not null" json:"credited_total"`
	GlobalTotal   int64     `gorm:"not null" json:"global_total"`
	ObjectKey     string    `gorm:"type:text" json:"object_key,omitempty"` // archive location, empty when not uploaded
	TakenAt       time.Time `gorm:"index;not null" json:"taken_at"`
}

func (LeaderboardSnapshot) TableName() string {
	return "leaderboard_snapshots"
}
