// Package scan computes the instance key of every location in a scene and
// groups locations that can share a prototype.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/instkey/internal/compiler"
	"github.com/roach88/instkey/internal/idgen"
	"github.com/roach88/instkey/internal/instancing"
	"github.com/roach88/instkey/internal/prototype"
)

// NoGroup is LocationResult.Group for a location that is not instanceable.
const NoGroup = -1

// LocationResult is the outcome for one location.
type LocationResult struct {
	Location string
	Key      instancing.Key

	// Group indexes Result.Groups, or is NoGroup.
	Group       int
	PrototypeID string
}

// Instanceable reports whether the location got a non-empty key.
func (lr LocationResult) Instanceable() bool {
	return !lr.Key.IsEmpty()
}

// Group is a set of locations with equal keys. Locations are in scene order.
type Group struct {
	PrototypeID string
	Key         instancing.Key
	Locations   []string
}

// Result is one scan of one scene.
type Result struct {
	RunID    string
	Seq      int64
	Scene    string
	Override instancing.Override

	// Locations in scene order.
	Locations []LocationResult

	// Groups in order of their first location.
	Groups []Group
}

// Instanceable counts the locations with a non-empty key.
func (r *Result) Instanceable() int {
	n := 0
	for _, lr := range r.Locations {
		if lr.Instanceable() {
			n++
		}
	}
	return n
}

// Scanner runs scans. A Scanner's prototype registry outlives individual
// scans: rescanning a scene keeps the prototypes of unchanged locations.
//
// Thread-safety: Scan may be called concurrently.
type Scanner struct {
	cfg      instancing.Config
	workers  int
	ids      idgen.Generator
	clock    *Clock
	registry *prototype.Registry[string]
	logger   *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithConfig sets the instancing configuration.
func WithConfig(cfg instancing.Config) Option {
	return func(s *Scanner) { s.cfg = cfg }
}

// WithWorkers bounds how many locations are keyed at once.
// Default: runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(s *Scanner) { s.workers = n }
}

// WithRunIDs sets the run id source. Default: idgen.UUIDv7.
func WithRunIDs(g idgen.Generator) Option {
	return func(s *Scanner) { s.ids = g }
}

// WithClock sets the sequence clock, e.g. resumed from a catalog.
func WithClock(c *Clock) Option {
	return func(s *Scanner) { s.clock = c }
}

// WithRegistry sets the prototype registry.
func WithRegistry(r *prototype.Registry[string]) Option {
	return func(s *Scanner) { s.registry = r }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// New creates a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		workers: runtime.GOMAXPROCS(0),
		ids:     idgen.UUIDv7{},
		clock:   &Clock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.registry == nil {
		s.registry = prototype.NewRegistry[string](prototype.WithLogger(s.logger))
	}
	return s
}

// Registry returns the scanner's prototype registry.
func (s *Scanner) Registry() *prototype.Registry[string] {
	return s.registry
}

// Scan keys every location of scene, groups equal keys and attaches each
// group to a prototype. The prototype's value is the group's first
// location, the source it would be composed from.
func (s *Scanner) Scan(ctx context.Context, scene *compiler.Scene) (*Result, error) {
	res := &Result{
		RunID:     s.ids.Generate(),
		Seq:       s.clock.Next(),
		Scene:     scene.Name,
		Override:  s.cfg.Override,
		Locations: make([]LocationResult, len(scene.Locations)),
		Groups:    []Group{},
	}

	keys, err := s.buildKeys(ctx, scene)
	if err != nil {
		return nil, err
	}
	for i, loc := range scene.Locations {
		res.Locations[i] = LocationResult{Location: loc.Name, Key: keys[i], Group: NoGroup}
	}

	groupLocations(res)

	if err := s.attachPrototypes(ctx, res); err != nil {
		return nil, err
	}

	s.logger.Info("scan complete",
		"run", res.RunID,
		"scene", res.Scene,
		"locations", len(res.Locations),
		"instanceable", res.Instanceable(),
		"groups", len(res.Groups))
	return res, nil
}

func (s *Scanner) buildKeys(ctx context.Context, scene *compiler.Scene) ([]instancing.Key, error) {
	keys := make([]instancing.Key, len(scene.Locations))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, loc := range scene.Locations {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			b := instancing.NewBuilder(loc.Graph, loc.Graph,
				instancing.WithConfig(s.cfg),
				instancing.WithLogger(s.logger))
			keys[i] = b.Build(loc.Graph)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", scene.Name, err)
	}
	return keys, nil
}

// groupLocations buckets keys by hash and confirms membership with Equal.
func groupLocations(res *Result) {
	buckets := make(map[uint64][]int)
	for i := range res.Locations {
		lr := &res.Locations[i]
		if !lr.Instanceable() {
			continue
		}
		h := lr.Key.Hash()
		group := NoGroup
		for _, gi := range buckets[h] {
			if res.Groups[gi].Key.Equal(lr.Key) {
				group = gi
				break
			}
		}
		if group == NoGroup {
			group = len(res.Groups)
			res.Groups = append(res.Groups, Group{Key: lr.Key})
			buckets[h] = append(buckets[h], group)
		}
		res.Groups[group].Locations = append(res.Groups[group].Locations, lr.Location)
		lr.Group = group
	}
}

// RegistryLocation is the name under which a scene's location holds its
// prototype. Scenes share the registry and may reuse location names.
func RegistryLocation(scene, location string) string {
	return scene + "\x00" + location
}

func (s *Scanner) attachPrototypes(ctx context.Context, res *Result) error {
	for i := range res.Locations {
		lr := &res.Locations[i]
		holder := RegistryLocation(res.Scene, lr.Location)
		if !lr.Instanceable() {
			// The location may have been instanceable in an earlier scan.
			if err := s.registry.Release(holder); err != nil && !errors.Is(err, prototype.ErrUnknownLocation) {
				return err
			}
			continue
		}
		source := res.Groups[lr.Group].Locations[0]
		p, err := s.registry.Acquire(ctx, lr.Key, holder, func(context.Context, instancing.Key) (string, error) {
			return source, nil
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", res.Scene, err)
		}
		lr.PrototypeID = p.ID
		res.Groups[lr.Group].PrototypeID = p.ID
	}
	return nil
}
