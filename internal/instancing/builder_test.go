package instancing

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/instkey/internal/graph"
	"github.com/roach88/instkey/internal/ir"
	"github.com/roach88/instkey/internal/testutil"
)

func quietBuilder(g *graph.Index, cfg Config) *Builder {
	return NewBuilder(g, g,
		WithConfig(cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func arcPaths(k Key) []string {
	var paths []string
	for _, a := range k.Arcs() {
		paths = append(paths, a.Site.Path)
	}
	return paths
}

// referenceThenAncestral is root -> reference R (direct) -> inherit C
// (ancestral), both with specs.
func referenceThenAncestral(hasPayloads bool) *graph.Index {
	b := testutil.NewInstanceBuilder("/Inst")
	r := b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/R"))
	b.AddChild(r, testutil.Ancestral(ir.ArcInherit, "/R/C"))
	b.SetHasPayloads(hasPayloads)
	return b.Build()
}

func TestDirectArcPropagatesToAncestralChild(t *testing.T) {
	g := referenceThenAncestral(false)

	var got []visit
	TraverseStrongToWeak(g, recorder(&got, nil))
	assert.Equal(t, []visit{{"/Inst", false}, {"/R", true}, {"/R/C", true}}, got,
		"C is eligible because R supplies a direct arc")

	// With a payload somewhere the key records both, strongest first.
	k := Build(referenceThenAncestral(true), Config{})
	assert.Equal(t, []string{"/R", "/R/C"}, arcPaths(k))
}

func TestNoPayloadStopsBelowEligibleNode(t *testing.T) {
	k := Build(referenceThenAncestral(false), Config{})
	assert.Equal(t, []string{"/R"}, arcPaths(k))
}

func TestAncestralOnlyGraphHasNoArcs(t *testing.T) {
	b := testutil.NewInstanceBuilder("/Inst")
	b.AddChild(graph.RootID, testutil.Ancestral(ir.ArcInherit, "/N"))
	g := b.Build()

	assert.Empty(t, EligibleNodes(g))
	k := Build(g, Config{})
	assert.Empty(t, k.Arcs())
	assert.True(t, k.IsEmpty())
}

func TestNonInstanceableGraphsShareEmptyKey(t *testing.T) {
	notAuthored := func() *graph.Index {
		b := graph.NewBuilder(testutil.Site("/X"))
		b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/Ref"))
		return b.Build()
	}()
	authoredFalse := func() *graph.Index {
		b := graph.NewBuilder(testutil.Site("/Y"))
		b.SetOpinions(testutil.Site("/Y"), testutil.Instanceable(false))
		b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/Other"))
		return b.Build()
	}()
	noEligible := func() *graph.Index {
		b := testutil.NewInstanceBuilder("/Z")
		b.AddChild(graph.RootID, testutil.NoSpecs(testutil.Direct(ir.ArcReference, "/Empty")))
		return b.Build()
	}()
	unsupported := func() *graph.Index {
		b := testutil.NewInstanceBuilder("/W")
		b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/Ref"))
		b.SetSupportsInstancing(false)
		return b.Build()
	}()

	for name, g := range map[string]*graph.Index{
		"not authored":   notAuthored,
		"authored false": authoredFalse,
		"no eligible":    noEligible,
		"unsupported":    unsupported,
	} {
		t.Run(name, func(t *testing.T) {
			k := Build(g, Config{})
			assert.True(t, k.Equal(Key{}))
			assert.Equal(t, EmptyKeyHash, k.Hash())
		})
	}
}

func TestBuildDeterministic(t *testing.T) {
	g := instanceableSample()

	first := Build(g, Config{})
	for i := 0; i < 10; i++ {
		assert.True(t, first.Equal(Build(g, Config{})))
	}
	assert.False(t, first.IsEmpty())
}

// instanceableSample mirrors sampleGraph without the culled branch and with
// instanceable authored on the root so that the gate passes.
func instanceableSample() *graph.Index {
	b := testutil.NewInstanceBuilder("/Root")
	a := b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/A"))
	b.AddChild(a, testutil.Ancestral(ir.ArcInherit, "/A/Class"))
	b.AddChild(graph.RootID, testutil.Ancestral(ir.ArcInherit, "/B"))
	c := b.AddChild(graph.RootID, testutil.NoSpecs(testutil.Direct(ir.ArcReference, "/C")))
	b.AddChild(c, testutil.Ancestral(ir.ArcVariant, "/C/v"))
	b.SetOpinions(testutil.Site("/A"), testutil.Selections("look", "red"))
	return b.Build()
}

func TestBuildSampleKey(t *testing.T) {
	k := Build(instanceableSample(), Config{})

	// /A is eligible and there is no payload, so /A/Class is not reached;
	// /C has no specs, so the walk continues to /C/v.
	want := []ir.Arc{
		{Type: ir.ArcReference, Offset: ir.IdentityOffset, Site: testutil.Site("/A")},
		{Type: ir.ArcVariant, Offset: ir.IdentityOffset, Site: testutil.Site("/C/v")},
	}
	if diff := cmp.Diff(want, k.Arcs()); diff != "" {
		t.Errorf("arcs mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []ir.VariantSelection{sel("look", "red")}, k.VariantSelections())
}

func TestStrengthOrderSwapChangesKey(t *testing.T) {
	build := func(first, second string) Key {
		b := testutil.NewInstanceBuilder("/Inst")
		b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, first))
		b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, second))
		return Build(b.Build(), Config{})
	}

	ab := build("/A", "/B")
	ba := build("/B", "/A")
	assert.Equal(t, []string{"/A", "/B"}, arcPaths(ab))
	assert.False(t, ab.Equal(ba))
}

func TestVariantPrecedenceInKey(t *testing.T) {
	b := testutil.NewInstanceBuilder("/Inst")
	b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/Strong"))
	b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/Weak"))
	b.SetOpinions(testutil.Site("/Strong"), testutil.Selections("look", "red"))
	b.SetOpinions(testutil.Site("/Weak"), testutil.Selections("look", "blue"))

	k := Build(b.Build(), Config{})
	assert.Equal(t, []ir.VariantSelection{sel("look", "red")}, k.VariantSelections())
}

func TestPruningIgnoresTrailingIneligibleNodes(t *testing.T) {
	build := func(extra int) Key {
		b := testutil.NewInstanceBuilder("/Inst")
		r := b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/R"))
		parent := r
		for i := 0; i < extra; i++ {
			parent = b.AddChild(parent, testutil.NoSpecs(testutil.Ancestral(ir.ArcInherit, "/R/Deep")))
		}
		return Build(b.Build(), Config{})
	}

	base := build(0)
	for _, extra := range []int{1, 3, 10} {
		assert.True(t, base.Equal(build(extra)), "extra=%d", extra)
	}
}

func TestPayloadDisablesPruning(t *testing.T) {
	withPayload := func() *graph.Index {
		b := testutil.NewInstanceBuilder("/Inst")
		r := b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/R"))
		b.AddChild(r, testutil.Direct(ir.ArcPayload, "/R/Payload"))
		return b.Build()
	}()
	without := func() *graph.Index {
		b := testutil.NewInstanceBuilder("/Inst")
		r := b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/R"))
		b.AddChild(r, testutil.NoSpecs(testutil.Direct(ir.ArcReference, "/R/Empty")))
		return b.Build()
	}()

	require.True(t, withPayload.HasPayloads())
	require.False(t, without.HasPayloads())

	kp := Build(withPayload, Config{})
	kn := Build(without, Config{})
	assert.Equal(t, []string{"/R", "/R/Payload"}, arcPaths(kp))
	assert.Equal(t, []string{"/R"}, arcPaths(kn))
	assert.False(t, kp.Equal(kn))
}

func TestCulledSubtreeContributesNothing(t *testing.T) {
	build := func(culled bool) Key {
		b := testutil.NewInstanceBuilder("/Inst")
		b.AddChild(graph.RootID, testutil.Direct(ir.ArcReference, "/R"))
		spec := testutil.Direct(ir.ArcReference, "/Gone")
		spec.Culled = culled
		gone := b.AddChild(graph.RootID, spec)
		b.SetOpinions(testutil.Site("/Gone"), testutil.Selections("look", "red"))
		b.AddChild(gone, testutil.Culled(testutil.Direct(ir.ArcReference, "/Gone/Child")))
		return Build(b.Build(), Config{})
	}

	culled := build(true)
	assert.Equal(t, []string{"/R"}, arcPaths(culled))
	assert.Empty(t, culled.VariantSelections())

	live := build(false)
	assert.Equal(t, []string{"/R", "/Gone"}, arcPaths(live))
}

func TestBuildConcurrent(t *testing.T) {
	g := instanceableSample()
	want := Build(g, Config{})
	builder := quietBuilder(g, Config{})

	var wg sync.WaitGroup
	results := make([]Key, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = builder.Build(g)
		}(i)
	}
	wg.Wait()

	for i, k := range results {
		assert.True(t, want.Equal(k), "result %d", i)
	}
}

func TestBuildPanicsOnInvalidOffset(t *testing.T) {
	b := testutil.NewInstanceBuilder("/Inst")
	spec := testutil.Direct(ir.ArcReference, "/R")
	spec.Offset = ir.LayerOffset{Offset: 1, Scale: -1}
	b.AddChild(graph.RootID, spec)
	g := b.Build()

	assert.PanicsWithValue(t,
		"instancing: invalid layer offset (offset=1, scale=-1) at @test.usda@</R>",
		func() { Build(g, Config{}) })
}

func TestBuildRecordsOffsets(t *testing.T) {
	b := testutil.NewInstanceBuilder("/Inst")
	spec := testutil.Direct(ir.ArcReference, "/R")
	spec.Offset = ir.LayerOffset{Offset: 24, Scale: 0.5}
	b.AddChild(graph.RootID, spec)

	k := Build(b.Build(), Config{})
	require.Len(t, k.Arcs(), 1)
	assert.Equal(t, ir.LayerOffset{Offset: 24, Scale: 0.5}, k.Arcs()[0].Offset)
}
