package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/warp/leave-scheduler/schedule"
)

// =============================================================================
// ASYNC DISPATCHER
// =============================================================================

var (
	// ErrQueueFull is returned when the dispatcher cannot accept more events.
	ErrQueueFull = errors.New("notification queue full")

	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Dispatcher hands events to a background worker. Notify never blocks:
// a full queue drops the event and returns ErrQueueFull.
type Dispatcher struct {
	next   schedule.Notifier
	logger *zap.Logger
	queue  chan schedule.Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher starts the worker. size is the queue capacity.
func NewDispatcher(next schedule.Notifier, size int, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		next:   next,
		logger: logger.Named("dispatcher"),
		queue:  make(chan schedule.Event, size),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) Notify(_ context.Context, ev schedule.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for ev := range d.queue {
		if err := d.next.Notify(context.Background(), ev); err != nil {
			d.failed.Add(1)
			d.logger.Warn("delivery failed",
				zap.String("event", string(ev.Kind)),
				zap.String("employee_id", ev.EmployeeID),
				zap.Error(err),
			)
			continue
		}
		d.delivered.Add(1)
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("closed with undelivered events", zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}

// Stats reports delivery counters.
func (d *Dispatcher) Stats() (delivered, failed, dropped int64) {
	return d.delivered.Load(), d.failed.Load(), d.dropped.Load()
}
