// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"reward-ledger/models"

	"github.com/sirupsen/logrus"
)

// RemoteProfile matches one entry of the identity service's change feed.
type RemoteProfile struct {
	ActorID     string    `json:"actor_id"`
	DisplayName string    `json:"display_name"`
	DisplayTag  string    `json:"display_tag"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileChangesResponse is the top-level structure of the change feed.
type ProfileChangesResponse struct {
	Profiles []RemoteProfile `json:"profiles"`
}

// ProfileStore is the subset of the identity directory the worker writes to.
type ProfileStore interface {
	UpsertMany(ctx context.Context, profiles []models.ActorProfile) (int, error)
}

// ProfileSyncWorker mirrors display names from an external identity service
// into actor_profiles so handles stay fresh for actors who have not acted lately.
type ProfileSyncWorker struct {
	store        ProfileStore
	interval     time.Duration
	endpoint     string
	serviceToken string
	httpClient   *http.Client

	mu     sync.Mutex
	cursor time.Time
}

func NewProfileSyncWorker(store ProfileStore, endpoint, serviceToken string, interval time.Duration, client *http.Client) (*ProfileSyncWorker, error) {
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid profile sync URL '%s': %w", endpoint, err)
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ProfileSyncWorker{
		store:        store,
		interval:     interval,
		endpoint:     endpoint,
		serviceToken: serviceToken,
		httpClient:   client,
	}, nil
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	logrus.Info("🔁 Starting Profile Sync Worker (identity service → actor_profiles)…")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	// Initial sync backfills from the beginning of time.
	if _, err := w.SyncOnce(ctx); err != nil {
		logrus.WithError(err).Warn("⚠️ Initial profile sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				logrus.WithError(err).Error("❌ Profile sync batch failed")
			}
		case <-ctx.Done():
			logrus.Info("⏹️ Profile Sync Worker stopped")
			return
		}
	}
}

// Cursor is the newest remote updated_at applied so far.
func (w *ProfileSyncWorker) Cursor() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor
}

// SyncOnce fetches changes since the cursor and upserts them. It returns the
// number of profiles written. The cursor only advances after a successful write.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since := w.Cursor()
	sinceStr := since.UTC().Format(time.RFC3339)

	endpointURL, err := url.Parse(w.endpoint)
	if err != nil {
		return 0, fmt.Errorf("invalid profile sync URL '%s': %w", w.endpoint, err)
	}
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	logrus.WithField("url", finalURL).Debug("[SYNC] ➡️  GET")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request to identity service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("identity service non-200 response: %d: %s", resp.StatusCode, string(body))
	}

	var response ProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode identity service response: %w", err)
	}
	if len(response.Profiles) == 0 {
		logrus.WithField("since", sinceStr).Debug("[SYNC] ✅ No profile changes")
		return 0, nil
	}

	profiles := make([]models.ActorProfile, 0, len(response.Profiles))
	latest := since
	for _, p := range response.Profiles {
		profiles = append(profiles, models.ActorProfile{
			ActorID:     p.ActorID,
			DisplayName: p.DisplayName,
			DisplayTag:  p.DisplayTag,
		})
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
	}

	written, err := w.store.UpsertMany(ctx, profiles)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	if latest.After(w.cursor) {
		w.cursor = latest
	}
	w.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"received": len(response.Profiles),
		"upserted": written,
		"cursor":   latest.UTC().Format(time.RFC3339),
	}).Info("[SYNC] ✅ Profiles synced")
	return written, nil
}
