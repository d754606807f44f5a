package instancing

import (
	"github.com/roach88/instkey/internal/graph"
	"github.com/roach88/instkey/internal/ir"
)

// SelectionSource answers which variant selections are authored at a
// node's site. Nothing authored is a nil result, not an error.
type SelectionSource interface {
	VariantSelections(n graph.Node) []ir.VariantSelection
}

// CollectVariantSelections gathers the authored selections of every node
// in g that can contribute specs, eligible or not, in strength order. The
// first selection seen for a variant set wins; later ones for the same set
// are dropped. The result is in insertion order.
func CollectVariantSelections(g graph.Graph, src SelectionSource) []ir.VariantSelection {
	var (
		out  []ir.VariantSelection
		seen map[string]struct{}
	)
	firstInStrengthOrder(g.Root(), func(n graph.Node) bool {
		if !n.CanContributeSpecs() {
			return false
		}
		for _, sel := range src.VariantSelections(n) {
			if _, dup := seen[sel.Set]; dup {
				continue
			}
			if seen == nil {
				seen = make(map[string]struct{})
			}
			seen[sel.Set] = struct{}{}
			out = append(out, sel)
		}
		return false
	})
	return out
}
