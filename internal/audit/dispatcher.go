package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adspace/internal/shared/clock"
	"adspace/pkg/logger"
)

// Sink receives committed timeline events in insertion order.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, events []TimelineEvent) error
}

// Dispatcher drains undispatched timeline rows to the configured sinks. A
// batch is marked dispatched only when every sink accepted it, so delivery is
// at-least-once.
type Dispatcher struct {
	repo      Repository
	sinks     []Sink
	clock     clock.Clock
	logger    *logger.Logger
	interval  time.Duration
	batchSize int

	ticker *time.Ticker
	done   chan bool
	once   sync.Once
}

func NewDispatcher(repo Repository, clk clock.Clock, log *logger.Logger, interval time.Duration, batchSize int, sinks ...Sink) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		repo:      repo,
		sinks:     sinks,
		clock:     clk,
		logger:    log,
		interval:  interval,
		batchSize: batchSize,
		done:      make(chan bool),
	}
}

// Start begins the dispatch loop
func (d *Dispatcher) Start(ctx context.Context) {
	d.ticker = time.NewTicker(d.interval)

	go func() {
		for {
			select {
			case <-d.done:
				return
			case <-ctx.Done():
				return
			case <-d.ticker.C:
				if _, err := d.DispatchOnce(ctx); err != nil {
					d.logger.WithError(err).Warn("timeline dispatch failed")
				}
			}
		}
	}()

	d.logger.Info("timeline dispatcher started", "interval", d.interval.String(), "sinks", len(d.sinks))
}

// Stop stops the dispatch loop
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		if d.ticker != nil {
			d.ticker.Stop()
		}
		close(d.done)
	})
	d.logger.Info("timeline dispatcher stopped")
}

// DispatchOnce delivers one batch and returns how many events were marked.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.repo.ListUndispatched(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load undispatched events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, events); err != nil {
			return 0, fmt.Errorf("sink %s: %w", sink.Name(), err)
		}
	}

	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := d.repo.MarkDispatched(ctx, ids, d.clock.Now()); err != nil {
		return 0, fmt.Errorf("failed to mark events dispatched: %w", err)
	}
	return len(events), nil
}
