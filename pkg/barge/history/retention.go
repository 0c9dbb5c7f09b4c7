// retention.go runs the periodic retention sweep over the history store
// using robfig/cron, mirroring the daemon's other background schedules.
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetention is how long an idle conversation is kept.
const DefaultRetention = 30 * 24 * time.Hour

// Sweeper prunes idle conversations on a cron schedule.
type Sweeper struct {
	store     *Store
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewSweeper creates a sweeper over store. retention <= 0 uses
// DefaultRetention.
func NewSweeper(store *Store, retention time.Duration, logger *slog.Logger) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		logger:    logger.With("component", "retention"),
	}
}

// Start schedules the sweep. schedule is a cron expression or descriptor
// ("@hourly" when empty).
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = "@hourly"
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Info("retention sweep scheduled",
		"schedule", schedule, "retention", s.retention)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.store.PruneIdle(ctx, s.retention)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("pruned idle conversations", "removed", removed)
	}
}
