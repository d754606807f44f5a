package graph

import (
	"fmt"
	"maps"

	"github.com/roach88/instkey/internal/ir"
)

// NodeSpec describes a node to add to a Builder.
type NodeSpec struct {
	Arc           ir.ArcType
	Site          ir.Site
	Offset        ir.LayerOffset
	DueToAncestor bool
	HasSpecs      bool
	Culled        bool
	Inert         bool
}

// Builder assembles an Index. Children are added in strength order: the
// first child added under a parent is its strongest.
//
// A Builder is single-use and not safe for concurrent use.
type Builder struct {
	nodes              []nodeData
	opinions           map[ir.Site]SiteOpinions
	hasPayloads        *bool
	supportsInstancing bool
	built              bool
}

// NewBuilder starts a graph whose root node sits at site.
// The root has the identity offset, no ancestral flag, and has specs.
func NewBuilder(site ir.Site) *Builder {
	return &Builder{
		nodes: []nodeData{{
			site:     site,
			arc:      ir.ArcRoot,
			offset:   ir.IdentityOffset,
			hasSpecs: true,
			parent:   noParent,
		}},
		opinions:           make(map[ir.Site]SiteOpinions),
		supportsInstancing: true,
	}
}

// SetRootHasSpecs overrides whether the root site holds specs.
func (b *Builder) SetRootHasSpecs(hasSpecs bool) *Builder {
	b.nodes[RootID].hasSpecs = hasSpecs
	return b
}

// AddChild appends a child under parent and returns its id.
// A zero Offset is treated as the identity offset.
func (b *Builder) AddChild(parent NodeID, spec NodeSpec) NodeID {
	b.checkOpen()
	if parent < 0 || int(parent) >= len(b.nodes) {
		panic(fmt.Sprintf("graph: parent id %d out of range", parent))
	}
	if spec.Arc == ir.ArcRoot {
		panic("graph: only the root node may have arc type root")
	}
	offset := spec.Offset
	if offset == (ir.LayerOffset{}) {
		offset = ir.IdentityOffset
	}
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, nodeData{
		site:          spec.Site,
		arc:           spec.Arc,
		offset:        offset,
		dueToAncestor: spec.DueToAncestor,
		hasSpecs:      spec.HasSpecs,
		culled:        spec.Culled,
		inert:         spec.Inert,
		parent:        parent,
	})
	b.nodes[parent].children = append(b.nodes[parent].children, id)
	return id
}

// SetOpinions records what is authored at site. Later calls for the same
// site replace earlier ones.
func (b *Builder) SetOpinions(site ir.Site, op SiteOpinions) *Builder {
	b.checkOpen()
	b.opinions[site] = op
	return b
}

// MergeOpinions fills whatever site has not authored yet from op: the
// instanceable opinion when none is recorded, the selections when none are.
func (b *Builder) MergeOpinions(site ir.Site, op SiteOpinions) *Builder {
	b.checkOpen()
	cur, ok := b.opinions[site]
	if !ok {
		b.opinions[site] = op
		return b
	}
	if cur.Instanceable == nil {
		cur.Instanceable = op.Instanceable
	}
	if len(cur.VariantSelections) == 0 {
		cur.VariantSelections = op.VariantSelections
	}
	b.opinions[site] = cur
	return b
}

// SetHasPayloads overrides the graph-wide payload flag. Without a call,
// Build derives it from whether any node was added with ArcPayload.
func (b *Builder) SetHasPayloads(has bool) *Builder {
	b.hasPayloads = &has
	return b
}

// SetSupportsInstancing marks the producing context as able (the default)
// or unable to instance.
func (b *Builder) SetSupportsInstancing(ok bool) *Builder {
	b.supportsInstancing = ok
	return b
}

// Build freezes the graph. The Builder must not be used afterwards.
func (b *Builder) Build() *Index {
	b.checkOpen()
	b.built = true

	hasPayloads := false
	if b.hasPayloads != nil {
		hasPayloads = *b.hasPayloads
	} else {
		for i := range b.nodes {
			if b.nodes[i].arc == ir.ArcPayload {
				hasPayloads = true
				break
			}
		}
	}

	return &Index{
		nodes:              b.nodes,
		opinions:           maps.Clone(b.opinions),
		hasPayloads:        hasPayloads,
		supportsInstancing: b.supportsInstancing,
	}
}

func (b *Builder) checkOpen() {
	if b.built {
		panic("graph: Builder used after Build")
	}
}
