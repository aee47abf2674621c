package events

// Emitter is the interface event sinks implement.
// Implementations must be fire-and-forget, non-blocking.
type Emitter interface {
	// Emit sends an event. Errors are logged internally, never
	// returned to the caller.
	Emit(event *Event)

	// Close gracefully shuts down the emitter.
	Close() error
}

// Tagged wraps an emitter and stamps each event with the emitting
// process identity before forwarding, so individual components never
// need to know it.
type Tagged struct {
	inner    Emitter
	engineID string
}

// NewTagged wraps inner with engine identity stamping.
func NewTagged(inner Emitter, engineID string) *Tagged {
	return &Tagged{inner: inner, engineID: engineID}
}

// Emit stamps and forwards the event.
func (t *Tagged) Emit(event *Event) {
	if event.EngineID == "" {
		event.EngineID = t.engineID
	}
	t.inner.Emit(event)
}

// Close closes the wrapped emitter.
func (t *Tagged) Close() error {
	return t.inner.Close()
}

// NoopEmitter is a no-op implementation for testing and disabled logging.
type NoopEmitter struct{}

// Emit does nothing.
func (n *NoopEmitter) Emit(event *Event) {}

// Close returns nil.
func (n *NoopEmitter) Close() error { return nil }
