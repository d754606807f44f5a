package prototype

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/instkey/internal/idgen"
	"github.com/roach88/instkey/internal/instancing"
)

var (
	// ErrNotInstanceable is returned by Acquire for the empty key.
	ErrNotInstanceable = errors.New("prototype: location is not instanceable")

	// ErrUnknownLocation is returned by Release for a location that holds
	// no prototype.
	ErrUnknownLocation = errors.New("prototype: location holds no prototype")
)

// BuildFunc composes the prototype for key. It runs once per key at a time.
type BuildFunc[T any] func(ctx context.Context, key instancing.Key) (T, error)

// Prototype is the shared result for one instance key.
type Prototype[T any] struct {
	ID     string
	Key    instancing.Key
	Digest string
	Value  T

	refs int // guarded by Registry.mu
}

// Registry maps instance keys to shared prototypes.
//
// Thread Safety:
//
//	Registry is safe for concurrent use. A single mutex guards the maps;
//	builds run outside it under singleflight.
type Registry[T any] struct {
	mu         sync.Mutex
	byDigest   map[string]*Prototype[T]
	byLocation map[string]*Prototype[T]
	flight     singleflight.Group

	ids     idgen.Generator
	logger  *slog.Logger
	metrics *metrics
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	ids        idgen.Generator
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// WithIDGenerator sets the prototype id source. Default: idgen.UUIDv7.
func WithIDGenerator(g idgen.Generator) Option {
	return func(o *options) { o.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the registry's metrics with reg.
// Without it the metrics are kept but not registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// NewRegistry creates an empty registry.
func NewRegistry[T any](opts ...Option) *Registry[T] {
	o := options{ids: idgen.UUIDv7{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[T]{
		byDigest:   make(map[string]*Prototype[T]),
		byLocation: make(map[string]*Prototype[T]),
		ids:        o.ids,
		logger:     o.logger,
		metrics:    newMetrics(o.registerer),
	}
}

// Acquire returns the prototype for key and records that location uses it.
// A missing prototype is built with build; concurrent callers with an
// equal key wait for the same build.
//
// A location already holding a prototype for a different key releases it
// once the new one is attached; when the build fails the location keeps
// what it held. Acquiring the same key again for a location is a no-op.
func (r *Registry[T]) Acquire(ctx context.Context, key instancing.Key, location string, build BuildFunc[T]) (*Prototype[T], error) {
	if key.IsEmpty() {
		r.metrics.acquires.WithLabelValues(resultNotInstanceable).Inc()
		return nil, ErrNotInstanceable
	}
	digest := key.Digest()

	r.mu.Lock()
	if held, ok := r.byLocation[location]; ok && held.Digest == digest {
		r.mu.Unlock()
		return held, nil
	}
	if p, ok := r.byDigest[digest]; ok {
		r.attachLocked(location, p)
		r.mu.Unlock()
		r.metrics.acquires.WithLabelValues(resultHit).Inc()
		return p, nil
	}
	r.mu.Unlock()

	// Singleflight: only one build per digest
	result, err, _ := r.flight.Do(digest, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := build(ctx, key)
		if err != nil {
			return nil, err
		}
		r.metrics.builds.Inc()
		p := &Prototype[T]{
			ID:     r.ids.Generate(),
			Key:    key,
			Digest: digest,
			Value:  v,
		}
		r.logger.Debug("prototype built", "id", p.ID, "digest", digest, "source", location)
		return p, nil
	})
	if err != nil {
		r.metrics.acquires.WithLabelValues(resultError).Inc()
		return nil, fmt.Errorf("build prototype for %s: %w", location, err)
	}

	built := result.(*Prototype[T])

	r.mu.Lock()
	// Another flight may have finished and been adopted first.
	p, ok := r.byDigest[digest]
	if !ok {
		p = built
		r.byDigest[digest] = p
		r.metrics.live.Set(float64(len(r.byDigest)))
	}
	r.attachLocked(location, p)
	r.mu.Unlock()

	r.metrics.acquires.WithLabelValues(resultMiss).Inc()
	return p, nil
}

// Release drops location's reference. The prototype is evicted when no
// location references it any more.
func (r *Registry[T]) Release(location string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byLocation[location]
	if !ok {
		return fmt.Errorf("release %s: %w", location, ErrUnknownLocation)
	}
	r.releaseLocked(location, p)
	return nil
}

// Lookup returns the prototype location currently uses.
func (r *Registry[T]) Lookup(location string) (*Prototype[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byLocation[location]
	return p, ok
}

// Refs returns how many locations use the prototype for digest.
func (r *Registry[T]) Refs(digest string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byDigest[digest]; ok {
		return p.refs
	}
	return 0
}

// Len returns the number of live prototypes.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byDigest)
}

// attachLocked points location at p, then drops its previous prototype.
func (r *Registry[T]) attachLocked(location string, p *Prototype[T]) {
	held, ok := r.byLocation[location]
	if ok && held == p {
		return
	}
	p.refs++
	r.byLocation[location] = p
	if ok {
		r.unrefLocked(held)
	}
}

func (r *Registry[T]) releaseLocked(location string, p *Prototype[T]) {
	delete(r.byLocation, location)
	r.unrefLocked(p)
}

func (r *Registry[T]) unrefLocked(p *Prototype[T]) {
	p.refs--
	if p.refs > 0 {
		return
	}
	delete(r.byDigest, p.Digest)
	r.metrics.live.Set(float64(len(r.byDigest)))
	r.logger.Debug("prototype evicted", "id", p.ID, "digest", p.Digest)
}
