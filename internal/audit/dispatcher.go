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
	// DropIfFull discards events instead of blocking the caller.
	DropIfFull bool
	// Reserve is the number of buffer slots routine events may not use, so
	// failures and session events still get through a burst of successful
	// conversions. It applies only with DropIfFull and is clamped to
	// BufferSize-1.
	Reserve int
}

// Dispatcher relays events to a sink from a single goroutine.
type Dispatcher struct {
	sink         Sink
	queue        chan Event
	dropIfFull   bool
	routineLimit int

	stop     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	drained  chan struct{}

	droppedRoutine atomic.Uint64
	droppedOther   atomic.Uint64
}

// NewDispatcher starts a dispatcher. It returns nil when cfg is disabled;
// every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := max(cfg.BufferSize, 1)
	reserve := min(max(cfg.Reserve, 0), size-1)
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:         sink,
		queue:        make(chan Event, size),
		dropIfFull:   cfg.DropIfFull,
		routineLimit: size - reserve,
		stop:         make(chan struct{}),
		drained:      make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.drained)

	ctx := context.Background()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(ctx, event)
		case <-d.stop:
			for len(d.queue) > 0 {
				d.sink.Emit(ctx, <-d.queue)
			}
			return
		}
	}
}

// Emit queues event.
//
// With DropIfFull, a routine event is dropped once the queue holds
// BufferSize-Reserve events and any other event only when the queue is full.
// Without it Emit waits for room, for ctx to end, or for Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.stopped.Load() {
		return
	}

	if d.dropIfFull {
		d.offer(event)
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

func (d *Dispatcher) offer(event Event) {
	routine := event.Routine()
	if routine && len(d.queue) >= d.routineLimit {
		d.droppedRoutine.Add(1)
		return
	}
	select {
	case d.queue <- event:
	case <-d.stop:
	default:
		if routine {
			d.droppedRoutine.Add(1)
		} else {
			d.droppedOther.Add(1)
		}
	}
}

// Close stops accepting events and returns once queued events reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
	})
	<-d.drained
}

// Dropped reports every event discarded for lack of room.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.droppedRoutine.Load() + d.droppedOther.Load()
}
