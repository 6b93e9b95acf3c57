// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// StartSnapshotScheduler captures a leaderboard snapshot every interval.
// Callers own the returned scheduler and must Shutdown it.
func (s *SnapshotService) StartSnapshotScheduler(interval, timeout time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("snapshot interval must be positive, got %s", interval)
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if _, err := s.Capture(ctx); err != nil {
				logrus.WithError(err).Error("[Scheduler] snapshot failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("leaderboard-snapshot"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule snapshot job: %w", err)
	}

	sched.Start()
	logrus.WithField("interval", interval).Info("✅ Leaderboard snapshot scheduler running")
	return sched, nil
}
