package testutil

import (
	"github.com/roach88/instkey/internal/graph"
	"github.com/roach88/instkey/internal/ir"
)

// LayerStack is the layer stack every test site lives in.
const LayerStack = "test.usda"

// Site returns a site in LayerStack.
func Site(path string) ir.Site {
	return ir.Site{LayerStack: LayerStack, Path: path}
}

// Direct is a node introduced by a direct arc, with specs.
func Direct(arc ir.ArcType, path string) graph.NodeSpec {
	return graph.NodeSpec{Arc: arc, Site: Site(path), HasSpecs: true}
}

// Ancestral is a node carried down from an ancestor location, with specs.
func Ancestral(arc ir.ArcType, path string) graph.NodeSpec {
	return graph.NodeSpec{Arc: arc, Site: Site(path), DueToAncestor: true, HasSpecs: true}
}

// NoSpecs returns spec with HasSpecs cleared.
func NoSpecs(spec graph.NodeSpec) graph.NodeSpec {
	spec.HasSpecs = false
	return spec
}

// Culled returns spec with Culled set.
func Culled(spec graph.NodeSpec) graph.NodeSpec {
	spec.Culled = true
	return spec
}

// Instanceable returns opinions authoring instanceable = v.
func Instanceable(v bool) graph.SiteOpinions {
	return graph.SiteOpinions{Instanceable: &v}
}

// Selections returns opinions authoring the given set/selection pairs.
// pairs alternates set name and selection.
func Selections(pairs ...string) graph.SiteOpinions {
	if len(pairs)%2 != 0 {
		panic("testutil: Selections needs set/selection pairs")
	}
	var sels []ir.VariantSelection
	for i := 0; i < len(pairs); i += 2 {
		sels = append(sels, ir.VariantSelection{Set: pairs[i], Selection: pairs[i+1]})
	}
	return graph.SiteOpinions{VariantSelections: sels}
}

// NewInstanceBuilder starts a graph rooted at path whose root site authors
// instanceable = true.
func NewInstanceBuilder(path string) *graph.Builder {
	b := graph.NewBuilder(Site(path))
	b.SetOpinions(Site(path), Instanceable(true))
	return b
}
