package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/instkey/internal/ir"
)

func site(path string) ir.Site {
	return ir.Site{LayerStack: "shot.usda", Path: path}
}

func TestBuilderStrengthOrder(t *testing.T) {
	b := NewBuilder(site("/World/Inst"))
	first := b.AddChild(RootID, NodeSpec{Arc: ir.ArcReference, Site: site("/A"), HasSpecs: true})
	second := b.AddChild(RootID, NodeSpec{Arc: ir.ArcInherit, Site: site("/B"), HasSpecs: true})
	nested := b.AddChild(first, NodeSpec{Arc: ir.ArcVariant, Site: site("/A{v=x}"), HasSpecs: true})
	idx := b.Build()

	root := idx.Root()
	require.Equal(t, 2, root.NumChildren())
	assert.Equal(t, idx.Node(first), root.Child(0))
	assert.Equal(t, idx.Node(second), root.Child(1))
	assert.Equal(t, idx.Node(nested), root.Child(0).Child(0))
	assert.Equal(t, 4, idx.Len())
}

func TestRootDefaults(t *testing.T) {
	idx := NewBuilder(site("/World/Inst")).Build()
	root := idx.Root()

	assert.True(t, IsRoot(root))
	assert.Nil(t, root.Parent())
	assert.Equal(t, ir.ArcRoot, root.ArcType())
	assert.True(t, root.Offset().IsIdentity())
	assert.False(t, root.IsDueToAncestor())
	assert.True(t, root.HasSpecs())
	assert.True(t, idx.SupportsInstancing())
	assert.False(t, idx.HasPayloads())
}

func TestParentLinks(t *testing.T) {
	b := NewBuilder(site("/Root"))
	ref := b.AddChild(RootID, NodeSpec{Arc: ir.ArcReference, Site: site("/Ref")})
	child := b.AddChild(ref, NodeSpec{Arc: ir.ArcInherit, Site: site("/Class")})
	idx := b.Build()

	n := idx.Node(child)
	assert.False(t, IsRoot(n))
	assert.Equal(t, idx.Node(ref), n.Parent())
	assert.Equal(t, idx.Root(), n.Parent().Parent())
}

func TestZeroOffsetBecomesIdentity(t *testing.T) {
	b := NewBuilder(site("/Root"))
	id := b.AddChild(RootID, NodeSpec{Arc: ir.ArcReference, Site: site("/Ref")})
	shifted := b.AddChild(RootID, NodeSpec{
		Arc:    ir.ArcReference,
		Site:   site("/Ref2"),
		Offset: ir.LayerOffset{Offset: 12, Scale: 2},
	})
	idx := b.Build()

	assert.Equal(t, ir.IdentityOffset, idx.Node(id).Offset())
	assert.Equal(t, ir.LayerOffset{Offset: 12, Scale: 2}, idx.Node(shifted).Offset())
}

func TestHasPayloadsDerived(t *testing.T) {
	b := NewBuilder(site("/Root"))
	ref := b.AddChild(RootID, NodeSpec{Arc: ir.ArcReference, Site: site("/Ref")})
	b.AddChild(ref, NodeSpec{Arc: ir.ArcPayload, Site: site("/Payload"), Culled: true})
	assert.True(t, b.Build().HasPayloads(), "culled payloads still count")

	forced := NewBuilder(site("/Root")).SetHasPayloads(true).Build()
	assert.True(t, forced.HasPayloads())
}

func TestCanContributeSpecs(t *testing.T) {
	b := NewBuilder(site("/Root"))
	inert := b.AddChild(RootID, NodeSpec{Arc: ir.ArcReference, Site: site("/Inert"), Inert: true})
	culled := b.AddChild(RootID, NodeSpec{Arc: ir.ArcReference, Site: site("/Culled"), Culled: true})
	live := b.AddChild(RootID, NodeSpec{Arc: ir.ArcReference, Site: site("/Live")})
	idx := b.Build()

	assert.False(t, idx.Node(inert).CanContributeSpecs())
	assert.False(t, idx.Node(culled).CanContributeSpecs())
	assert.True(t, idx.Node(live).CanContributeSpecs())
}

func TestOpinionsAreKeyedBySite(t *testing.T) {
	yes := true
	shared := site("/Shared")
	b := NewBuilder(site("/Root"))
	a := b.AddChild(RootID, NodeSpec{Arc: ir.ArcReference, Site: shared})
	c := b.AddChild(RootID, NodeSpec{Arc: ir.ArcInherit, Site: shared})
	other := b.AddChild(RootID, NodeSpec{Arc: ir.ArcInherit, Site: site("/Other")})
	b.SetOpinions(shared, SiteOpinions{
		VariantSelections: []ir.VariantSelection{{Set: "look", Selection: "red"}},
		Instanceable:      &yes,
	})
	idx := b.Build()

	assert.Equal(t, idx.VariantSelections(idx.Node(a)), idx.VariantSelections(idx.Node(c)))
	assert.Nil(t, idx.VariantSelections(idx.Node(other)))

	v, ok := idx.InstanceableOpinion(idx.Node(a))
	assert.True(t, ok)
	assert.True(t, v)

	_, ok = idx.InstanceableOpinion(idx.Node(other))
	assert.False(t, ok)
}

func TestMergeOpinionsKeepsFirst(t *testing.T) {
	yes, no := true, false
	shared := site("/Shared")
	b := NewBuilder(site("/Root"))
	n := b.AddChild(RootID, NodeSpec{Arc: ir.ArcReference, Site: shared})
	b.MergeOpinions(shared, SiteOpinions{Instanceable: &yes})
	b.MergeOpinions(shared, SiteOpinions{
		VariantSelections: []ir.VariantSelection{{Set: "look", Selection: "red"}},
		Instanceable:      &no,
	})
	idx := b.Build()

	v, ok := idx.InstanceableOpinion(idx.Node(n))
	assert.True(t, ok)
	assert.True(t, v, "first instanceable opinion is kept")
	assert.Equal(t, []ir.VariantSelection{{Set: "look", Selection: "red"}}, idx.VariantSelections(idx.Node(n)))
}

func TestBuilderMisuse(t *testing.T) {
	b := NewBuilder(site("/Root"))
	assert.Panics(t, func() {
		b.AddChild(RootID, NodeSpec{Arc: ir.ArcRoot, Site: site("/X")})
	})
	assert.Panics(t, func() {
		b.AddChild(NodeID(7), NodeSpec{Arc: ir.ArcReference, Site: site("/X")})
	})

	b.Build()
	assert.Panics(t, func() {
		b.AddChild(RootID, NodeSpec{Arc: ir.ArcReference, Site: site("/X")})
	})
}

func TestDump(t *testing.T) {
	b := NewBuilder(site("/Root"))
	ref := b.AddChild(RootID, NodeSpec{
		Arc:      ir.ArcReference,
		Site:     site("/Ref"),
		HasSpecs: true,
		Offset:   ir.LayerOffset{Offset: 5, Scale: 1},
	})
	b.AddChild(ref, NodeSpec{Arc: ir.ArcInherit, Site: site("/Class"), DueToAncestor: true})
	idx := b.Build()

	want := "root @shot.usda@</Root>\n" +
		"  reference @shot.usda@</Ref> (offset=5, scale=1)\n" +
		"    inherit @shot.usda@</Class> [ancestral,no-specs]\n"
	assert.Equal(t, want, idx.Dump())
}
