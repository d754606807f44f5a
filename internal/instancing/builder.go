package instancing

import (
	"fmt"
	"log/slog"

	"github.com/roach88/instkey/internal/graph"
	"github.com/roach88/instkey/internal/ir"
)

// Composition is a graph that also answers opinion queries about its own
// sites. graph.Index is one.
type Composition interface {
	graph.Graph
	SelectionSource
	OpinionSource
}

// Builder computes instance keys. It holds no per-build state and is safe
// for concurrent use.
type Builder struct {
	cfg        Config
	selections SelectionSource
	opinions   OpinionSource
	logger     *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithConfig sets the instancing configuration. The default is Config{}.
func WithConfig(cfg Config) Option {
	return func(b *Builder) { b.cfg = cfg }
}

// WithLogger sets the logger used for debug output. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder reading variant selections from sel and
// instanceable opinions from ops.
func NewBuilder(sel SelectionSource, ops OpinionSource, opts ...Option) *Builder {
	b := &Builder{
		selections: sel,
		opinions:   ops,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build computes the key of a composition that answers its own opinion
// queries.
func Build(c Composition, cfg Config) Key {
	return NewBuilder(c, c, WithConfig(cfg)).Build(c)
}

// IsInstanceable runs the root eligibility gate with the builder's config.
func (b *Builder) IsInstanceable(g graph.Graph) bool {
	return IsGraphInstanceable(g, b.opinions, b.cfg)
}

// Build returns the instance key of g, or the empty key when g cannot be
// instanced.
//
// Eligible nodes are recorded in strong-to-weak order. When g has no
// payload anywhere, nothing below an eligible node can change the sharing
// decision, so the traversal does not descend past it. With a payload in
// the graph the traversal runs to completion: payload inclusion can be
// toggled independently and changes what identical means.
//
// So a reference R carrying an inherit C yields [R] without payloads and
// [R, C] with them. Equal R sites already imply equal C below them.
func (b *Builder) Build(g graph.Graph) Key {
	if !b.IsInstanceable(g) {
		return Key{}
	}

	hasPayloads := g.HasPayloads()
	var arcs []ir.Arc
	TraverseStrongToWeak(g, VisitorFunc(func(n graph.Node, eligible bool) bool {
		if !eligible {
			return true
		}
		arcs = append(arcs, arcFor(n))
		return hasPayloads
	}))

	selections := CollectVariantSelections(g, b.selections)
	key := NewKey(arcs, selections)

	b.logger.Debug("instance key built",
		"root", g.Root().Site().String(),
		"arcs", len(arcs),
		"selections", len(selections),
		"hash", key.Hash(),
	)
	return key
}

// arcFor records an eligible node. The root reaching here, or an offset
// that would break key equality, means the upstream graph is broken.
func arcFor(n graph.Node) ir.Arc {
	if graph.IsRoot(n) {
		panic("instancing: root node classified eligible")
	}
	off := n.Offset()
	if !ir.ValidOffset(off) {
		panic(fmt.Sprintf("instancing: invalid layer offset %s at %s", off, n.Site()))
	}
	return ir.Arc{
		Type:   n.ArcType(),
		Offset: off,
		Site:   n.Site(),
	}
}
