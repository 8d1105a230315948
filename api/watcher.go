/*
watcher.go - Background window watcher

PURPOSE:
  Periodically renews this process's instance lease and announces, once
  per month, that the scheduling window is about to close.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Runs once immediately on Start
  - Never needed for correctness: session expiry is evaluated lazily by the
    coordinator, the watcher only adds proactive notices
  - Losing the lease to another instance calls OnLeaseLost so the process
    can shut down instead of running two independent session locks

CONFIGURATION:
  - Interval:        How often to check (default: 1 minute)
  - ClosingSoonLead: How long before close to announce (default: 6 hours)
  - LeaseTTL:        Lease length written on each renewal

USAGE:
  w := NewWatcher(coord, store, instanceID, logger)
  w.Start(ctx)
  // ... later
  w.Stop()

SEE ALSO:
  - schedule/coordinator.go: AnnounceClosingSoon
  - store/sqlite/lease.go: ClaimInstance
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-scheduler/schedule"
	"github.com/warp/leave-scheduler/store/sqlite"
)

// LeaseClaimer renews the single-instance lease.
type LeaseClaimer interface {
	ClaimInstance(ctx context.Context, instanceID string, ttl time.Duration, now time.Time) error
}

// Watcher handles proactive window notices and lease renewal.
type Watcher struct {
	Coordinator     *schedule.Coordinator
	Lease           LeaseClaimer
	InstanceID      string
	Interval        time.Duration
	ClosingSoonLead time.Duration
	LeaseTTL        time.Duration
	Now             func() time.Time
	OnLeaseLost     func(error)

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewWatcher creates a watcher. lease may be nil to skip lease renewal.
func NewWatcher(coord *schedule.Coordinator, lease LeaseClaimer, instanceID string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		Coordinator:     coord,
		Lease:           lease,
		InstanceID:      instanceID,
		Interval:        time.Minute,
		ClosingSoonLead: 6 * time.Hour,
		LeaseTTL:        2 * time.Minute,
		Now:             time.Now,
		logger:          logger.Named("watcher"),
	}
}

// Start begins the watcher loop.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ticker != nil {
		return
	}
	w.ticker = time.NewTicker(w.Interval)
	w.stop = make(chan struct{})
	w.wg.Add(1)

	go w.run(ctx)

	w.logger.Info("started", zap.Duration("interval", w.Interval))
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ticker != nil {
		w.ticker.Stop()
		close(w.stop)
		w.wg.Wait()
		w.ticker = nil
		w.logger.Info("stopped")
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	// Run immediately on start
	w.Tick(ctx)

	for {
		select {
		case <-w.ticker.C:
			w.Tick(ctx)
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one check. Exported for tests.
func (w *Watcher) Tick(ctx context.Context) {
	now := w.Now()

	if w.Lease != nil {
		err := w.Lease.ClaimInstance(ctx, w.InstanceID, w.LeaseTTL, now)
		var conflict *sqlite.InstanceConflictError
		switch {
		case errors.As(err, &conflict):
			w.logger.Error("instance lease lost",
				zap.String("instance_id", w.InstanceID),
				zap.String("holder_id", conflict.HolderID),
			)
			if w.OnLeaseLost != nil {
				w.OnLeaseLost(err)
			}
			return
		case err != nil:
			w.logger.Warn("instance lease renewal failed", zap.Error(err))
		}
	}

	announced, err := w.Coordinator.AnnounceClosingSoon(ctx, now, w.ClosingSoonLead)
	if err != nil {
		w.logger.Warn("closing-soon check failed", zap.Error(err))
		return
	}
	if announced {
		w.logger.Info("closing-soon notice sent")
	}
}
