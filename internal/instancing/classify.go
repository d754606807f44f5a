package instancing

import "github.com/roach88/instkey/internal/graph"

// Classify decides whether n can affect sharing, given whether any node
// above it on the current root-to-node path was introduced by a direct arc.
//
// hasDirectArc is what n passes on to its own children: once a direct arc
// appears on a path it stays true for everything beneath it on that path.
// It is never shared between sibling paths.
//
// The root is never eligible and passes false to its children: the root's
// own arc says nothing about what it pulls in.
func Classify(n graph.Node, inheritedHasDirectArc bool) (eligible, hasDirectArc bool) {
	if graph.IsRoot(n) {
		return false, false
	}
	hasDirectArc = inheritedHasDirectArc || !n.IsDueToAncestor()
	return hasDirectArc && n.HasSpecs(), hasDirectArc
}
