package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit discard events instead of waiting for room.
	DropIfFull bool
	// OnDrop, when set, is called with the running drop total after each
	// discarded event. It runs on the emitting goroutine.
	OnDrop func(total uint64)
}

// Dispatcher hands events to a Sink on a single background goroutine so
// request paths never wait on audit I/O.
type Dispatcher struct {
	sink   Sink
	drop   bool
	onDrop func(uint64)

	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	stopped chan struct{}

	dropped atomic.Uint64
}

// NewDispatcher starts a dispatcher. It returns nil when cfg is disabled;
// every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:    sink,
		drop:    cfg.DropIfFull,
		onDrop:  cfg.OnDrop,
		queue:   make(chan Event, cfg.BufferSize),
		stopped: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues event. Without DropIfFull it waits for room until ctx is
// done. Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.drop {
		select {
		case d.queue <- event:
		default:
			total := d.dropped.Add(1)
			if d.onDrop != nil {
				d.onDrop(total)
			}
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	}
}

// Close stops accepting events, delivers everything already queued and
// waits for the sink to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.stopped
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.stopped
}

// Dropped returns the number of events discarded on a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
