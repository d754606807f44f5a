package compiler

import (
	"os"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/instkey/internal/graph"
	"github.com/roach88/instkey/internal/ir"
)

func loadKitchenCUE(t *testing.T) *SceneDoc {
	t.Helper()
	data, err := os.ReadFile("testdata/kitchen.cue")
	require.NoError(t, err)
	v := cuecontext.New().CompileBytes(data, cue.Filename("kitchen.cue"))
	require.NoError(t, v.Err())
	doc, err := CompileScene(v.LookupPath(cue.ParsePath("scene.kitchen")))
	require.NoError(t, err)
	return doc
}

func TestBuildKitchen(t *testing.T) {
	scene, err := Build(loadKitchenCUE(t))
	require.NoError(t, err)

	assert.Equal(t, "kitchen", scene.Name)
	assert.Equal(t, []string{"/Kitchen/Chair_1", "/Kitchen/Chair_2"}, scene.Names())

	loc, ok := scene.Location("/Kitchen/Chair_1")
	require.True(t, ok)
	g := loc.Graph

	root := g.Root()
	assert.Equal(t, ir.Site{LayerStack: "kitchen.usda", Path: "/Kitchen/Chair_1"}, root.Site())
	v, authored := g.InstanceableOpinion(root)
	assert.True(t, authored)
	assert.True(t, v)
	assert.True(t, g.SupportsInstancing())
	assert.False(t, g.HasPayloads())

	require.Equal(t, 1, root.NumChildren())
	ref := root.Child(0)
	assert.Equal(t, ir.ArcReference, ref.ArcType())
	assert.Equal(t, ir.LayerOffset{Offset: 10, Scale: 2}, ref.Offset())
	assert.Equal(t, []ir.VariantSelection{
		{Set: "lod", Selection: "high"},
		{Set: "look", Selection: "red"},
	}, g.VariantSelections(ref), "selections are emitted in set-name order")

	class := ref.Child(0)
	assert.Equal(t, ir.Site{LayerStack: "kitchen.usda", Path: "/_class_Chair"}, class.Site())
	assert.True(t, class.IsDueToAncestor())
	assert.True(t, class.HasSpecs())
	assert.Equal(t, ir.IdentityOffset, class.Offset())

	_, ok = scene.Location("/Kitchen/Missing")
	assert.False(t, ok)
}

func TestBuildLocationFlags(t *testing.T) {
	noSpecs := node("reference", "/A")
	noSpecs.HasSpecs = boolPtr(false)
	inert := node("reference", "/B")
	inert.Inert = true

	doc := oneLocation(node("root", "/Inst", noSpecs, inert, node("payload", "/P")))
	doc.Locations[0].SupportsInstancing = boolPtr(false)
	doc.Locations[0].HasPayloads = boolPtr(false)

	scene, err := Build(doc)
	require.NoError(t, err)
	g := scene.Locations[0].Graph

	assert.False(t, g.SupportsInstancing())
	assert.False(t, g.HasPayloads(), "explicit flag wins over payload arcs")
	assert.False(t, g.Root().Child(0).HasSpecs())
	assert.False(t, g.Root().Child(1).CanContributeSpecs())
}

func TestBuildDerivesHasPayloads(t *testing.T) {
	scene, err := Build(oneLocation(node("root", "/Inst", node("payload", "/P"))))
	require.NoError(t, err)
	assert.True(t, scene.Locations[0].Graph.HasPayloads())
}

func TestBuildMergesSharedSiteOpinions(t *testing.T) {
	a := node("inherit", "/Class")
	a.Instanceable = boolPtr(true)
	b := node("inherit", "/Class")
	b.VariantSelections = map[string]string{"look": "red"}

	scene, err := Build(oneLocation(node("root", "/Inst",
		node("reference", "/A", a),
		node("reference", "/B", b),
	)))
	require.NoError(t, err)
	g := scene.Locations[0].Graph

	var shared graph.Node = g.Root().Child(0).Child(0)
	_, authored := g.InstanceableOpinion(shared)
	assert.True(t, authored)
	assert.Len(t, g.VariantSelections(shared), 1)
}

func TestBuildRejectsInvalid(t *testing.T) {
	_, err := Build(&SceneDoc{Name: "s"})

	require.Error(t, err)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, ErrNoLocations, verrs[0].Code)
}
