package instancing

import "github.com/roach88/instkey/internal/graph"

// OpinionSource answers whether instanceable is authored at a node's site
// and, if so, its value.
type OpinionSource interface {
	InstanceableOpinion(n graph.Node) (value, authored bool)
}

// IsGraphInstanceable is the cheap check run before any key is built.
//
// Precedence:
//  1. cfg.Override == OverrideOff, or a context without instancing support:
//     false.
//  2. No eligible node anywhere in g: false.
//  3. cfg.Override == OverrideOn: true.
//  4. Otherwise the composed authored instanceable opinion, false when
//     nothing is authored.
func IsGraphInstanceable(g graph.Graph, ops OpinionSource, cfg Config) bool {
	if cfg.Override == OverrideOff || !g.SupportsInstancing() {
		return false
	}
	if !hasEligibleNode(g) {
		return false
	}
	if cfg.Override == OverrideOn {
		return true
	}
	return composeInstanceable(g, ops)
}

// hasEligibleNode stops descending as soon as one eligible node is seen.
func hasEligibleNode(g graph.Graph) bool {
	found := false
	TraverseStrongToWeak(g, VisitorFunc(func(_ graph.Node, eligible bool) bool {
		found = found || eligible
		return !found
	}))
	return found
}

// composeInstanceable returns the strongest authored opinion among nodes
// that can contribute specs. A node's children are only consulted when the
// node itself has no opinion, which in pre-order is the same as taking the
// first authored opinion.
func composeInstanceable(g graph.Graph, ops OpinionSource) bool {
	var value bool
	firstInStrengthOrder(g.Root(), func(n graph.Node) bool {
		if !n.CanContributeSpecs() {
			return false
		}
		v, authored := ops.InstanceableOpinion(n)
		if authored {
			value = v
		}
		return authored
	})
	return value
}
