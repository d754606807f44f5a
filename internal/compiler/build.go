package compiler

import (
	"sort"

	"github.com/roach88/instkey/internal/graph"
	"github.com/roach88/instkey/internal/ir"
)

// Build validates doc and builds one graph per location.
// Validation problems are returned as ValidationErrors.
func Build(doc *SceneDoc) (*Scene, error) {
	if errs := Validate(doc); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	scene := &Scene{
		Name:      doc.Name,
		Locations: make([]Location, 0, len(doc.Locations)),
	}
	for i := range doc.Locations {
		loc := &doc.Locations[i]
		scene.Locations = append(scene.Locations, Location{
			Name:  loc.Name,
			Graph: buildLocation(loc, doc.LayerStack),
		})
	}
	return scene, nil
}

func buildLocation(loc *LocationDoc, layerStack string) *graph.Index {
	root := &loc.Root
	b := graph.NewBuilder(resolveSite(root.Site, layerStack))
	b.SetRootHasSpecs(hasSpecs(root))
	if loc.HasPayloads != nil {
		b.SetHasPayloads(*loc.HasPayloads)
	}
	if loc.SupportsInstancing != nil {
		b.SetSupportsInstancing(*loc.SupportsInstancing)
	}

	setOpinions(b, root, layerStack)
	addChildren(b, graph.RootID, root, layerStack)
	return b.Build()
}

func addChildren(b *graph.Builder, parent graph.NodeID, n *NodeDoc, layerStack string) {
	for i := range n.Children {
		c := &n.Children[i]
		id := b.AddChild(parent, graph.NodeSpec{
			Arc:           ir.ArcType(c.Arc),
			Site:          resolveSite(c.Site, layerStack),
			Offset:        resolveOffset(c.Offset),
			DueToAncestor: c.DueToAncestor,
			HasSpecs:      hasSpecs(c),
			Culled:        c.Culled,
			Inert:         c.Inert,
		})
		setOpinions(b, c, layerStack)
		addChildren(b, id, c, layerStack)
	}
}

// setOpinions records n's authored data. Validation guarantees that all
// nodes authoring at one site agree, so the first one is kept.
func setOpinions(b *graph.Builder, n *NodeDoc, layerStack string) {
	if len(n.VariantSelections) == 0 && n.Instanceable == nil {
		return
	}
	op := graph.SiteOpinions{Instanceable: n.Instanceable}
	sets := make([]string, 0, len(n.VariantSelections))
	for set := range n.VariantSelections {
		sets = append(sets, set)
	}
	sort.Strings(sets)
	for _, set := range sets {
		op.VariantSelections = append(op.VariantSelections, ir.VariantSelection{
			Set:       set,
			Selection: n.VariantSelections[set],
		})
	}
	b.MergeOpinions(resolveSite(n.Site, layerStack), op)
}

func hasSpecs(n *NodeDoc) bool {
	return n.HasSpecs == nil || *n.HasSpecs
}

func resolveSite(s SiteDoc, layerStack string) ir.Site {
	if s.LayerStack == "" {
		s.LayerStack = layerStack
	}
	return ir.Site{LayerStack: s.LayerStack, Path: s.Path}
}

func resolveOffset(o *OffsetDoc) ir.LayerOffset {
	if o == nil {
		return ir.IdentityOffset
	}
	off := ir.LayerOffset{Offset: o.Offset, Scale: 1}
	if o.Scale != nil {
		off.Scale = *o.Scale
	}
	return off
}
