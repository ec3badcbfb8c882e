// Package recovery runs the periodic reconciliation of storage intents that
// were interrupted between their steps.
package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/muraguri00/zalora-luxury/internal/app/metrics"
	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	"github.com/muraguri00/zalora-luxury/internal/app/system"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

const (
	DefaultSchedule = "@every 1m"
	DefaultStaleAge = 2 * time.Minute
)

// Sweeper reconciles stale intents on a cron schedule.
type Sweeper struct {
	reconciler storage.Reconciler
	schedule   string
	staleAge   time.Duration
	timeout    time.Duration
	log        *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper. Empty schedule and non-positive staleAge
// fall back to the defaults.
func NewSweeper(reconciler storage.Reconciler, schedule string, staleAge time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("recovery")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	return &Sweeper{
		reconciler: reconciler,
		schedule:   schedule,
		staleAge:   staleAge,
		timeout:    30 * time.Second,
		log:        log,
	}
}

func (s *Sweeper) Name() string { return "recovery-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("recovery sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("recovery sweeper stopped")
	return nil
}

// Sweep runs one reconciliation pass.
func (s *Sweeper) Sweep(ctx context.Context) storage.ReconcileReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.reconciler.Reconcile(ctx, s.staleAge)
	metrics.RecordReconcile("completed", report.Completed)
	metrics.RecordReconcile("compensated", report.Compensated)
	metrics.RecordReconcile("failed", report.Failed)
	if err != nil {
		s.log.WithError(err).Warn("reconcile intents")
		return report
	}
	if report.Scanned > 0 {
		s.log.WithField("scanned", report.Scanned).
			WithField("completed", report.Completed).
			WithField("compensated", report.Compensated).
			WithField("failed", report.Failed).
			Info("intents reconciled")
	}
	return report
}
