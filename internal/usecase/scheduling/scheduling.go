package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"conductor/internal/domain"
)

// Sweeper periodically prunes aged entries from the knowledge store.
type Sweeper struct {
	store     domain.KnowledgeStore
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper. retention <= 0 disables pruning entirely.
func NewSweeper(store domain.KnowledgeStore, retention time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		retention: retention,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start schedules the retention sweep with the given cron expression and
// begins the scheduler.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	if s.retention <= 0 {
		s.logger.Debug("knowledge retention disabled, sweeper idle")
		return nil
	}
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Warn("knowledge sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("knowledge sweeper started", "schedule", schedule, "retention", s.retention)
	return nil
}

// Sweep prunes entries older than the retention window once.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.retention)
	n, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		return domain.WrapOp("Sweeper.Sweep", err)
	}
	if n > 0 {
		s.logger.Info("knowledge entries pruned", "count", n, "cutoff", cutoff)
	}
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
