package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const defaultBufferSize = 4096

// Dispatcher decouples event producers from sink latency. Emit enqueues
// onto a buffered channel and never blocks; a single goroutine drains
// the channel into the wrapped emitter. When the buffer is full the
// event is dropped and counted.
type Dispatcher struct {
	sink    Emitter
	queue   chan *Event
	dropped atomic.Uint64
	logger  *zap.Logger

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher wraps sink with an asynchronous buffer. A bufferSize of
// zero or less uses the default.
func NewDispatcher(sink Emitter, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	d := &Dispatcher{
		sink:   sink,
		queue:  make(chan *Event, bufferSize),
		logger: logger,
	}

	d.wg.Add(1)
	go d.drain()

	return d
}

// Emit enqueues the event, dropping it if the buffer is full.
func (d *Dispatcher) Emit(event *Event) {
	select {
	case d.queue <- event:
	default:
		dropped := d.dropped.Add(1)
		if dropped%1000 == 1 {
			d.logger.Warn("event buffer full, dropping events",
				zap.Uint64("total_dropped", dropped))
		}
	}
}

// Dropped returns the number of events dropped so far.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close drains remaining buffered events and closes the sink.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
	return d.sink.Close()
}

func (d *Dispatcher) drain() {
	defer d.wg.Done()
	for event := range d.queue {
		d.sink.Emit(event)
	}
}
