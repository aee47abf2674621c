// Package registry keeps the live provider set: internal providers
// registered at startup by the embedding application, and external
// providers loaded from the configuration store. Internal providers
// always win a match over external ones.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/events"
	"github.com/embedworks/monocle/internal/provider"
	"github.com/embedworks/monocle/internal/store"
)

// ErrInvalidProvider is returned when registering a nil provider.
var ErrInvalidProvider = errors.New("invalid provider")

// ExternalFactory builds an external provider from a store record.
type ExternalFactory func(store.Record) (provider.Provider, error)

// resolvable is the optional interface a provider implements when a
// scheme match alone does not prove it can serve the URL.
type resolvable interface {
	CanResolve(ctx context.Context, rawURL string) bool
}

// Registry is the two-tier provider lookup. Safe for concurrent use.
type Registry struct {
	store   store.Store
	factory ExternalFactory
	emitter events.Emitter
	logger  *zap.Logger

	mu        sync.RWMutex
	internal  []provider.Provider
	external  []provider.Provider
	populated bool
}

// New builds an empty registry. The store may be nil when no external
// providers are configured.
func New(providerStore store.Store, factory ExternalFactory, emitter events.Emitter, logger *zap.Logger) *Registry {
	return &Registry{
		store:   providerStore,
		factory: factory,
		emitter: emitter,
		logger:  logger,
	}
}

// EnsurePopulated loads external providers from the store on first
// call; later calls are no-ops. A store failure logs and leaves the
// external set empty rather than failing the caller: the engine can
// serve internal providers while the store recovers.
func (r *Registry) EnsurePopulated(ctx context.Context) {
	r.mu.Lock()
	if r.populated || r.store == nil {
		r.populated = true
		r.mu.Unlock()
		return
	}
	r.populated = true
	r.mu.Unlock()

	records, err := r.store.List(ctx)
	if err != nil {
		r.logger.Error("Failed to load external providers, starting with none",
			zap.Error(err))
		return
	}

	for _, record := range records {
		r.Upsert(record)
	}

	r.logger.Info("External providers loaded",
		zap.Int("count", len(records)))
}

// RegisterInternal adds an internal provider. Internal providers are
// matched in registration order, before any external provider.
func (r *Registry) RegisterInternal(p provider.Provider) error {
	if p == nil {
		return ErrInvalidProvider
	}

	r.mu.Lock()
	r.internal = append(r.internal, p)
	r.mu.Unlock()

	r.logger.Info("Internal provider registered",
		zap.String("provider", p.Name()))
	return nil
}

// Upsert adds or replaces the external provider built from record.
func (r *Registry) Upsert(record store.Record) {
	p, err := r.factory(record)
	if err != nil {
		r.logger.Warn("Failed to build external provider",
			zap.String("provider", record.Name),
			zap.Error(err))
		return
	}

	r.mu.Lock()
	replaced := false
	for i, existing := range r.external {
		if existing.Name() == record.Name {
			r.external[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		r.external = append(r.external, p)
	}
	r.mu.Unlock()

	r.emit(events.TypeProviderUpserted, record.Name)
	r.logger.Info("External provider upserted",
		zap.String("provider", record.Name),
		zap.Bool("replaced", replaced))
}

// Remove drops the external provider with the given name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	removed := false
	for i, existing := range r.external {
		if existing.Name() == name {
			r.external = append(r.external[:i], r.external[i+1:]...)
			removed = true
			break
		}
	}
	r.mu.Unlock()

	if !removed {
		return
	}

	r.emit(events.TypeProviderRemoved, name)
	r.logger.Info("External provider removed",
		zap.String("provider", name))
}

// Match returns the first provider claiming rawURL: internal providers
// first, then external, each in registration order. Providers that
// implement CanResolve are additionally asked to confirm; the lock is
// not held across those calls.
func (r *Registry) Match(ctx context.Context, rawURL string) provider.Provider {
	for _, p := range r.snapshot() {
		if !p.Match(rawURL) {
			continue
		}
		if res, ok := p.(resolvable); ok && !res.CanResolve(ctx, rawURL) {
			continue
		}
		return p
	}
	return nil
}

// Providers returns a snapshot of all registered providers, internal
// first.
func (r *Registry) Providers() []provider.Provider {
	return r.snapshot()
}

func (r *Registry) snapshot() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]provider.Provider, 0, len(r.internal)+len(r.external))
	out = append(out, r.internal...)
	out = append(out, r.external...)
	return out
}

func (r *Registry) emit(eventType, name string) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(&events.Event{
		EventType: eventType,
		Provider:  name,
		CreatedAt: time.Now().UTC(),
	})
}
