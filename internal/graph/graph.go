package graph

import "github.com/roach88/instkey/internal/ir"

// Node is one node of a composition graph.
type Node interface {
	// Site is where this node's opinions come from.
	Site() ir.Site

	// ArcType is the arc that introduced this node. ArcRoot for the root.
	ArcType() ir.ArcType

	// Offset is the time offset across the arc.
	Offset() ir.LayerOffset

	// IsDueToAncestor reports whether the node only exists because an
	// ancestor location's arc was carried down to this location.
	IsDueToAncestor() bool

	// HasSpecs reports whether the site holds any authored opinions.
	HasSpecs() bool

	// IsCulled reports whether the node and its whole subtree were culled.
	IsCulled() bool

	// CanContributeSpecs reports whether opinions at the site participate
	// in value resolution.
	CanContributeSpecs() bool

	// NumChildren and Child expose children in strength order, strongest
	// first.
	NumChildren() int
	Child(i int) Node

	// Parent returns nil for the root.
	Parent() Node
}

// Graph is a finished composition graph for one location.
type Graph interface {
	Root() Node

	// HasPayloads reports whether a payload arc exists anywhere in the
	// graph, including culled subtrees.
	HasPayloads() bool

	// SupportsInstancing reports whether the context that produced the
	// graph supports instancing at all.
	SupportsInstancing() bool
}

// IsRoot reports whether n is the root of its graph.
func IsRoot(n Node) bool {
	return n.Parent() == nil
}
