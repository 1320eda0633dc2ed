package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adspace/internal/shared/clock"
	"adspace/internal/shared/config"
	"adspace/pkg/logger"
)

// Handler performs one job. Handlers re-check the booking state themselves
// and return nil when the job has become irrelevant.
type Handler func(ctx context.Context, job ScheduledJob) error

// Runner polls the scheduled_jobs table and dispatches due jobs by kind.
type Runner struct {
	store    *Store
	cfg      config.JobsConfig
	clock    clock.Clock
	logger   *logger.Logger
	handlers map[Kind]Handler

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

func NewRunner(store *Store, cfg config.JobsConfig, clk clock.Clock, log *logger.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 5 * time.Minute
	}
	return &Runner{
		store:    store,
		cfg:      cfg,
		clock:    clk,
		logger:   log,
		handlers: make(map[Kind]Handler),
		done:     make(chan struct{}),
	}
}

func (r *Runner) Register(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Start starts the polling loop
func (r *Runner) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := r.RunDue(ctx); err != nil {
					r.logger.WithError(err).Error("job runner tick failed")
				}
			case <-r.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	r.logger.Info("job runner started", "poll_interval", r.cfg.PollInterval.String(), "batch_size", r.cfg.BatchSize)
}

// Stop stops the polling loop
func (r *Runner) Stop() {
	r.once.Do(func() { close(r.done) })
	r.logger.Info("job runner stopped")
}

// RunDue recovers expired leases, then claims and runs one batch of due jobs.
// It returns the number of jobs that completed.
func (r *Runner) RunDue(ctx context.Context) (int, error) {
	if recovered, err := r.store.RecoverStale(ctx); err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	} else if recovered > 0 {
		r.logger.Warn("recovered jobs with expired leases", "count", recovered)
	}

	claimed, err := r.store.ClaimDue(ctx, r.cfg.BatchSize, r.cfg.LeaseDuration)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, job := range claimed {
		if r.run(ctx, job) {
			completed++
		}
	}
	return completed, nil
}

func (r *Runner) run(ctx context.Context, job ScheduledJob) bool {
	r.mu.RLock()
	handler, ok := r.handlers[job.Kind]
	r.mu.RUnlock()

	if !ok {
		r.logger.Error("no handler registered for job kind", "job_id", job.ID.String(), "kind", string(job.Kind))
		if ferr := r.store.Fail(ctx, job, fmt.Errorf("no handler for %s", job.Kind), 0, 0); ferr != nil {
			r.logger.WithError(ferr).Error("failed to record job failure", "job_id", job.ID.String())
		}
		return false
	}

	r.logger.LogJobFired(ctx, job.ID.String(), string(job.Kind), job.BookingID.String(), r.clock.Now().Sub(job.DueAt))

	if err := handler(ctx, job); err != nil {
		r.logger.WithError(err).Warn("job failed",
			"job_id", job.ID.String(),
			"kind", string(job.Kind),
			"booking_id", job.BookingID.String(),
			"attempt", job.Attempts,
		)
		if ferr := r.store.Fail(ctx, job, err, r.cfg.MaxAttempts, r.cfg.RetryBackoff); ferr != nil {
			r.logger.WithError(ferr).Error("failed to record job failure", "job_id", job.ID.String())
		}
		return false
	}

	if err := r.store.Complete(ctx, job.ID); err != nil {
		r.logger.WithError(err).Error("failed to complete job", "job_id", job.ID.String())
		return false
	}
	return true
}
