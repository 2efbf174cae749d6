package goSession

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// auditDispatcher moves events off the request path onto one goroutine so a
// slow sink never delays Login or Revoke.
type auditDispatcher struct {
	sink       AuditSink
	logger     *slog.Logger
	queue      chan AuditEvent
	stop       chan struct{}
	dropIfFull bool

	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *slog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &auditDispatcher{
		sink:       sink,
		logger:     logger,
		queue:      make(chan AuditEvent, size),
		stop:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver hands one event to the sink. A panicking sink loses that event
// only.
func (d *auditDispatcher) deliver(event AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			n := d.failed.Add(1)
			d.logger.Error("audit sink panicked",
				"event_type", event.EventType,
				"panic", r,
				"failed_total", n,
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event for the sink. With DropIfFull set, a full buffer drops
// the event and counts it; otherwise Emit blocks until there is room or ctx
// ends.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			// Log on powers of two so a stuck sink cannot flood the log.
			if n := d.dropped.Add(1); n&(n-1) == 0 {
				d.logger.Warn("audit buffer full, dropping events", "dropped_total", n)
			}
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events and drains what is already queued.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded for lack of buffer space.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
