// Package scheduler runs periodic maintenance while the server is up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/bpmnforms/internal/store"
	"github.com/rendis/bpmnforms/pkg/schema"
)

// DefaultSchedule runs the pruner once a day at 03:00.
const DefaultSchedule = "0 3 * * *"

// BundlePruner is the part of the store the pruner needs.
type BundlePruner interface {
	DeleteBundlesBefore(ctx context.Context, before time.Time) (int64, error)
}

var _ BundlePruner = (store.Store)(nil)

// PrunerConfig configures a Pruner.
type PrunerConfig struct {
	// Schedule is a five-field cron expression or a descriptor such as
	// "@daily" or "@every 6h". Empty means DefaultSchedule.
	Schedule string
	// Retention is how long bundles are kept. Must be positive.
	Retention time.Duration
}

// Pruner deletes bundles older than the retention on a cron schedule.
type Pruner struct {
	store     BundlePruner
	schedule  cron.Schedule
	retention time.Duration
	logger    *slog.Logger
	clock     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	runMu   sync.Mutex
	running bool
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewPruner validates cfg and creates a Pruner.
func NewPruner(s BundlePruner, cfg PrunerConfig, logger *slog.Logger) (*Pruner, error) {
	if s == nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "pruner store is required")
	}
	if cfg.Retention <= 0 {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "pruner retention must be positive, got %s", cfg.Retention)
	}
	expr := cfg.Schedule
	if expr == "" {
		expr = DefaultSchedule
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "parse prune schedule %q: %s", expr, err.Error()).WithCause(err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:     s,
		schedule:  sched,
		retention: cfg.Retention,
		logger:    logger,
		clock:     time.Now,
	}, nil
}

// NextRun returns the first scheduled run after from.
func (p *Pruner) NextRun(from time.Time) time.Time {
	return p.schedule.Next(from)
}

// Start launches the background loop. It returns an error when already started.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.done != nil {
		p.mu.Unlock()
		return fmt.Errorf("pruner already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.loop(loopCtx)
	p.logger.Info("pruner started", slog.Duration("retention", p.retention))
	return nil
}

func (p *Pruner) loop(ctx context.Context) {
	defer close(p.done)

	for {
		now := p.clock()
		next := p.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := p.PruneNow(ctx); err != nil {
				p.logger.Error("prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

// PruneNow deletes bundles generated before now minus the retention. A call
// that overlaps a running prune returns 0 without touching the store.
func (p *Pruner) PruneNow(ctx context.Context) (int64, error) {
	if !p.tryAcquire() {
		return 0, nil
	}
	defer p.release()

	cutoff := p.clock().UTC().Add(-p.retention)
	n, err := p.store.DeleteBundlesBefore(ctx, cutoff)
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "prune bundles").WithCause(err)
	}
	p.logger.Info("bundles pruned",
		slog.Int64("deleted", n),
		slog.Time("cutoff", cutoff))
	return n, nil
}

func (p *Pruner) tryAcquire() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	return true
}

func (p *Pruner) release() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	p.running = false
}

// Stop gracefully shuts down the loop. Stopping a pruner that is not
// running is a no-op.
func (p *Pruner) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}

	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil

	p.logger.Info("pruner stopped")
	return nil
}
