package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"reward-ledger/models"

	"github.com/jonboulle/clockwork"
)

type memoryUploader struct {
	mu      sync.Mutex
	err     error
	objects map[string][]byte
}

func (m *memoryUploader) PutObject(_ context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if contentType != "application/json" {
		return errors.New("unexpected content type " + contentType)
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = body
	return nil
}

func TestCaptureArchivesAndPersists(t *testing.T) {
	db := openTestDB(t)
	seedProfile(t, db, "alice", "Alice", "9")
	seedRecord(t, db, "alice", 0, 100, "")
	seedRecord(t, db, "bob", 0, 30, "")

	up := &memoryUploader{}
	svc := NewSnapshotService(db, DefaultTierBands, up, clockwork.NewFakeClockAt(epoch), 10)
	ctx := context.Background()

	snap, err := svc.Capture(ctx)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if snap.GlobalTotal != 130 || len(snap.Rows) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !strings.HasPrefix(snap.ObjectKey, "snapshots/2026/03/14/") || !strings.HasSuffix(snap.ObjectKey, ".json") {
		t.Fatalf("object key = %q", snap.ObjectKey)
	}

	var archived Snapshot
	if err := json.Unmarshal(up.objects[snap.ObjectKey], &archived); err != nil {
		t.Fatalf("archived body: %v", err)
	}
	if archived.ID != snap.ID || archived.GlobalTotal != 130 {
		t.Fatalf("archived = %+v", archived)
	}

	latest, err := svc.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ID != snap.ID || latest.ObjectKey != snap.ObjectKey {
		t.Fatalf("latest = %+v", latest)
	}
	if latest.Rows[0].ActorID != "alice" || latest.Rows[0].DisplayName != "Alice#9" || latest.Rows[1].Rank != 2 {
		t.Fatalf("latest rows = %+v", latest.Rows)
	}
	if !latest.TakenAt.Equal(epoch) {
		t.Fatalf("taken at = %s", latest.TakenAt)
	}

	// Capturing never writes to the ledger.
	if n := countRecords(t, db); n != 2 {
		t.Fatalf("records = %d, want 2", n)
	}
}

func TestCaptureSurvivesUploadFailure(t *testing.T) {
	db := openTestDB(t)
	seedRecord(t, db, "alice", 0, 10, "")

	svc := NewSnapshotService(db, DefaultTierBands, &memoryUploader{err: errors.New("bucket gone")}, clockwork.NewFakeClockAt(epoch), 5)
	snap, err := svc.Capture(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if snap.ObjectKey != "" {
		t.Fatalf("object key = %q, want empty", snap.ObjectKey)
	}

	var n int64
	db.Model(&models.LeaderboardSnapshot{}).Count(&n)
	if n != 1 {
		t.Fatalf("snapshot rows = %d, want 1", n)
	}
}

func TestCaptureEmptyLedger(t *testing.T) {
	svc := NewSnapshotService(openTestDB(t), DefaultTierBands, nil, clockwork.NewFakeClockAt(epoch), 5)
	ctx := context.Background()

	snap, err := svc.Capture(ctx)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(snap.Rows) != 0 || snap.GlobalTotal != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
	latest, err := svc.Latest(ctx)
	if err != nil || latest != nil {
		t.Fatalf("latest = %+v, %v; want nil", latest, err)
	}
}

func TestLatestPicksNewestSnapshot(t *testing.T) {
	db := openTestDB(t)
	clock := clockwork.NewFakeClockAt(epoch)
	svc := NewSnapshotService(db, DefaultTierBands, nil, clock, 5)
	ctx := context.Background()

	seedRecord(t, db, "alice", 0, 10, "")
	if _, err := svc.Capture(ctx); err != nil {
		t.Fatalf("capture: %v", err)
	}
	clock.Advance(time.Hour)
	seedRecord(t, db, "bob", 0, 20, "")
	second, err := svc.Capture(ctx)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	latest, err := svc.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != second.ID || len(latest.Rows) != 2 || latest.GlobalTotal != 30 {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestSnapshotSchedulerCaptures(t *testing.T) {
	db := openTestDB(t)
	seedRecord(t, db, "alice", 0, 10, "")
	clock := clockwork.NewFakeClockAt(epoch)
	svc := NewSnapshotService(db, DefaultTierBands, nil, clock, 5)

	sched, err := svc.StartSnapshotScheduler(time.Minute, time.Second)
	if err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	defer func() { _ = sched.Shutdown() }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		clock.Advance(time.Minute)
		latest, err := svc.Latest(context.Background())
		if err == nil && latest != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scheduler never captured a snapshot")
}

func TestSnapshotSchedulerRejectsBadInterval(t *testing.T) {
	svc := NewSnapshotService(openTestDB(t), DefaultTierBands, nil, nil, 5)
	if _, err := svc.StartSnapshotScheduler(0, time.Second); err == nil {
		t.Fatal("zero interval accepted")
	}
}

func TestSnapshotTxOptions(t *testing.T) {
	opts := snapshotTxOptions("postgres")
	if len(opts) != 1 || opts[0].Isolation != sql.LevelRepeatableRead || !opts[0].ReadOnly {
		t.Fatalf("postgres options = %+v", opts)
	}
	if opts := snapshotTxOptions("sqlite"); opts != nil {
		t.Fatalf("sqlite options = %+v", opts)
	}
}
