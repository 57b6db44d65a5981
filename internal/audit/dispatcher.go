package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; events that do not fit are dropped.
	DropIfFull bool
	// OnDrop runs once per dropped event, on the emitting goroutine.
	OnDrop func(Event)
	Logger *slog.Logger
}

// Dispatcher hands events to a Sink on a single delivery goroutine.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	onDrop     func(Event)
	log        *slog.Logger

	// mu guards closed and the close of events; emitters hold it shared.
	mu      sync.RWMutex
	closed  bool
	events  chan Event
	stopped chan struct{}

	dropped atomic.Uint64
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is
// disabled; a nil Dispatcher accepts and drops every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
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
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		onDrop:     cfg.OnDrop,
		log:        log,
		events:     make(chan Event, size),
		stopped:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for event := range d.events {
		d.deliver(event)
	}
}

// deliver isolates the delivery goroutine from a panicking sink.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("audit sink panicked", "event", event.EventType, "panic", fmt.Sprint(r))
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. With DropIfFull a full buffer drops the event; otherwise
// Emit waits for room and drops the event only if ctx ends first. Events
// emitted after Close are ignored.
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

	if d.dropIfFull {
		select {
		case d.events <- event:
		default:
			d.drop(event, "buffer full")
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
		d.drop(event, "context done")
	}
}

func (d *Dispatcher) drop(event Event, reason string) {
	if n := d.dropped.Add(1); n == 1 {
		d.log.Warn("audit events are being dropped", "reason", reason, "event", event.EventType)
	} else {
		d.log.Debug("audit event dropped", "reason", reason, "event", event.EventType, "dropped_total", n)
	}
	if d.onDrop != nil {
		d.onDrop(event)
	}
}

// Close stops accepting events, delivers what is buffered and waits for the
// sink to finish. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	<-d.stopped
}

// Dropped returns how many events were dropped since start.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
