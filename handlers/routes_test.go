package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reward-ledger/config"
	"reward-ledger/models"
	"reward-ledger/services"
	"reward-ledger/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

type fixedRewards struct{}

func (fixedRewards) Generate() services.Reward {
	return services.Reward{Tier: models.TierMid, Magnitude: 50}
}

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	clock *clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := utils.OpenDatabase(config.DriverSQLite, utils.SQLiteDSN(filepath.Join(t.TempDir(), "ledger.db")))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := utils.MigrateDatabase(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	ledger := services.NewLedger(db, clock, 10*time.Second)
	directory := services.NewIdentityDirectory(db)

	app := fiber.New()
	SetupActionRoutes(app, services.NewActionService(fixedRewards{}, ledger, directory, time.Second), ledger)
	SetupStatsRoutes(app, StatsDeps{
		Aggregator:   services.NewAggregator(db, services.DefaultTierBands),
		Directory:    directory,
		Snapshots:    services.NewSnapshotService(db, services.DefaultTierBands, nil, clock, 10),
		DefaultLimit: 10,
	})
	return &testEnv{app: app, db: db, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, target, actor, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
		req.Header.Set("X-Actor-Name", strings.ToUpper(actor[:1])+actor[1:])
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	} else if len(raw) > 0 {
		out["_raw"] = string(raw)
	}
	return resp.StatusCode, out
}

func TestPostActionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/actions", "alice", "")
	if status != http.StatusOK {
		t.Fatalf("first action status = %d body = %v", status, body)
	}
	if body["tier"] != "mid" || body["magnitude"].(float64) != 50 || body["credited_to"] != "alice" || body["gift"] != false {
		t.Fatalf("first action body = %v", body)
	}

	env.clock.Advance(4 * time.Second)
	status, body = env.do(t, http.MethodPost, "/actions", "alice", "")
	if status != http.StatusTooManyRequests {
		t.Fatalf("second action status = %d", status)
	}
	if body["cooldown_remaining_seconds"].(float64) != 6 {
		t.Fatalf("cooldown body = %v", body)
	}

	status, body = env.do(t, http.MethodGet, "/actions/cooldown", "alice", "")
	if status != http.StatusOK || body["ready"] != false || body["cooldown_remaining_seconds"].(float64) != 6 {
		t.Fatalf("cooldown status = %d %v", status, body)
	}

	env.clock.Advance(6 * time.Second)
	status, _ = env.do(t, http.MethodPost, "/actions", "alice", "")
	if status != http.StatusOK {
		t.Fatalf("third action status = %d", status)
	}
}

func TestPostActionGift(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/actions", "alice", `{"target_id":"bob","target_name":"Bob","target_tag":"7"}`)
	if status != http.StatusOK || body["credited_to"] != "bob" || body["gift"] != true {
		t.Fatalf("gift status = %d body = %v", status, body)
	}

	status, body = env.do(t, http.MethodGet, "/stats/bob", "", "")
	if status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	if body["credited_total"].(float64) != 50 || body["display_name"] != "Bob#7" {
		t.Fatalf("bob stats = %v", body)
	}

	status, body = env.do(t, http.MethodGet, "/stats/me", "alice", "")
	if status != http.StatusOK || body["credited_total"].(float64) != 0 || body["gifted_away_total"].(float64) != 50 {
		t.Fatalf("alice stats = %d %v", status, body)
	}
}

func TestPostActionRejections(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/actions", "alice", `{"target_id":"alice"}`)
	if status != http.StatusBadRequest || body["error"] != "invalid_gift_self" {
		t.Fatalf("self gift = %d %v", status, body)
	}

	status, body = env.do(t, http.MethodPost, "/actions", "alice", `{"target_id":`)
	if status != http.StatusBadRequest || body["error"] != "invalid_request" {
		t.Fatalf("bad body = %d %v", status, body)
	}

	status, _ = env.do(t, http.MethodPost, "/actions", "", "")
	if status != http.StatusUnauthorized {
		t.Fatalf("missing actor = %d", status)
	}

	var n int64
	env.db.Model(&models.ActionRecord{}).Count(&n)
	if n != 0 {
		t.Fatalf("records = %d, want 0", n)
	}
}

func TestPostActionStoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	sqlDB, _ := env.db.DB()
	_ = sqlDB.Close()

	status, body := env.do(t, http.MethodPost, "/actions", "alice", "")
	if status != http.StatusServiceUnavailable || body["error"] != "transient_error" {
		t.Fatalf("closed store = %d %v", status, body)
	}
}

func TestStatsNoHistory(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/stats/me", "carol", "")
	if status != http.StatusNotFound || body["error"] != "no_history" {
		t.Fatalf("stats/me = %d %v", status, body)
	}
	status, _ = env.do(t, http.MethodGet, "/stats/nobody", "", "")
	if status != http.StatusNotFound {
		t.Fatalf("stats/nobody = %d", status)
	}
}

func TestGlobalStats(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/actions", "alice", "")
	env.do(t, http.MethodPost, "/actions", "bob", "")

	status, body := env.do(t, http.MethodGet, "/stats/global", "", "")
	if status != http.StatusOK || body["global_total"].(float64) != 100 {
		t.Fatalf("global = %d %v", status, body)
	}
	actors := body["actors"].([]any)
	if len(actors) != 2 {
		t.Fatalf("actors = %v", actors)
	}
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/actions", "alice", "")
	env.do(t, http.MethodPost, "/actions", "bob", `{"target_id":"alice"}`)

	req := httptest.NewRequest(http.MethodGet, "/leaderboard?limit=1", nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	defer resp.Body.Close()
	var rows []services.LeaderboardRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].ActorID != "alice" || rows[0].CreditedTotal != 100 || rows[0].Rank != 1 {
		t.Fatalf("rows = %+v", rows)
	}

	status, _ := env.do(t, http.MethodGet, "/leaderboard?limit=abc", "", "")
	if status != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", status)
	}
}

func TestLatestSnapshotMissing(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodGet, "/leaderboard/snapshots/latest", "", "")
	if status != http.StatusNotFound || body["error"] != "no_snapshot" {
		t.Fatalf("latest = %d %v", status, body)
	}
}
