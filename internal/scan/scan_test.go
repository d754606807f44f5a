package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/instkey/internal/compiler"
	"github.com/roach88/instkey/internal/instancing"
	"github.com/roach88/instkey/internal/prototype"
	"github.com/roach88/instkey/internal/testutil"
)

const diningRoom = `
scene: dining
layer_stack: dining.usda
locations:
  - name: /Room/Chair_1
    root:
      site: {path: /Room/Chair_1}
      instanceable: true
      children:
        - arc: reference
          site: {layer_stack: chair.usda, path: /Chair}
  - name: /Room/Table
    root:
      site: {path: /Room/Table}
      instanceable: true
      children:
        - arc: reference
          site: {layer_stack: table.usda, path: /Table}
  - name: /Room/Chair_2
    root:
      site: {path: /Room/Chair_2}
      instanceable: true
      children:
        - arc: reference
          site: {layer_stack: chair.usda, path: /Chair}
  - name: /Room/Lamp
    root:
      site: {path: /Room/Lamp}
      children:
        - arc: reference
          site: {layer_stack: lamp.usda, path: /Lamp}
`

func loadScene(t *testing.T, src string) *compiler.Scene {
	t.Helper()
	doc, err := compiler.DecodeSceneYAML([]byte(src), t.Name())
	require.NoError(t, err)
	scene, err := compiler.Build(doc)
	require.NoError(t, err)
	return scene
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScanner(opts ...Option) *Scanner {
	logger := quiet()
	base := []Option{
		WithLogger(logger),
		WithRunIDs(testutil.NewSequentialIDs("run")),
		WithRegistry(prototype.NewRegistry[string](
			prototype.WithLogger(logger),
			prototype.WithIDGenerator(testutil.NewSequentialIDs("proto")),
		)),
	}
	return New(append(base, opts...)...)
}

func TestScanGroupsEqualKeys(t *testing.T) {
	s := newTestScanner()

	res, err := s.Scan(context.Background(), loadScene(t, diningRoom))
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, int64(1), res.Seq)
	assert.Equal(t, "dining", res.Scene)
	assert.Equal(t, instancing.OverrideDefault, res.Override)
	assert.Equal(t, 3, res.Instanceable())

	require.Len(t, res.Groups, 2)
	assert.Equal(t, []string{"/Room/Chair_1", "/Room/Chair_2"}, res.Groups[0].Locations)
	assert.Equal(t, "proto-1", res.Groups[0].PrototypeID)
	assert.Equal(t, []string{"/Room/Table"}, res.Groups[1].Locations)
	assert.Equal(t, "proto-2", res.Groups[1].PrototypeID)

	byName := make(map[string]LocationResult)
	for _, lr := range res.Locations {
		byName[lr.Location] = lr
	}
	assert.Equal(t, 0, byName["/Room/Chair_2"].Group)
	assert.Equal(t, "proto-1", byName["/Room/Chair_2"].PrototypeID)
	assert.Equal(t, NoGroup, byName["/Room/Lamp"].Group)
	assert.Empty(t, byName["/Room/Lamp"].PrototypeID)
	assert.True(t, byName["/Room/Chair_1"].Key.Equal(byName["/Room/Chair_2"].Key))

	p, ok := s.Registry().Lookup(RegistryLocation("dining", "/Room/Chair_2"))
	require.True(t, ok)
	assert.Equal(t, "/Room/Chair_1", p.Value, "prototype sourced from the first location")
	assert.Equal(t, 2, s.Registry().Refs(p.Digest))
}

func TestScanLocationsKeepSceneOrder(t *testing.T) {
	res, err := newTestScanner(WithWorkers(8)).Scan(context.Background(), loadScene(t, diningRoom))
	require.NoError(t, err)

	var names []string
	for _, lr := range res.Locations {
		names = append(names, lr.Location)
	}
	assert.Equal(t, []string{"/Room/Chair_1", "/Room/Table", "/Room/Chair_2", "/Room/Lamp"}, names)
}

func TestScanWorkerCountDoesNotChangeKeys(t *testing.T) {
	scene := loadScene(t, diningRoom)
	one, err := newTestScanner(WithWorkers(1)).Scan(context.Background(), scene)
	require.NoError(t, err)
	many, err := newTestScanner(WithWorkers(16)).Scan(context.Background(), scene)
	require.NoError(t, err)

	for i := range one.Locations {
		assert.True(t, one.Locations[i].Key.Equal(many.Locations[i].Key), one.Locations[i].Location)
	}
}

func TestRescanReusesPrototypes(t *testing.T) {
	s := newTestScanner(WithClock(NewClockAt(10)))
	scene := loadScene(t, diningRoom)

	first, err := s.Scan(context.Background(), scene)
	require.NoError(t, err)
	second, err := s.Scan(context.Background(), scene)
	require.NoError(t, err)

	assert.Equal(t, int64(11), first.Seq)
	assert.Equal(t, int64(12), second.Seq)
	assert.Equal(t, "run-2", second.RunID)
	assert.Equal(t, first.Groups[0].PrototypeID, second.Groups[0].PrototypeID)
	assert.Equal(t, 2, s.Registry().Len())
}

func chairScene(name string, instanceable bool) string {
	return fmt.Sprintf(`
scene: %s
layer_stack: %s.usda
locations:
  - name: /World/Chair
    root:
      site: {path: /World/Chair}
      instanceable: %t
      children:
        - arc: reference
          site: {layer_stack: chair.usda, path: /Chair}
`, name, name, instanceable)
}

func TestScenesSharingLocationNamesKeepTheirPrototypes(t *testing.T) {
	s := newTestScanner()
	ctx := context.Background()

	kitchen, err := s.Scan(ctx, loadScene(t, chairScene("kitchen", true)))
	require.NoError(t, err)
	require.Len(t, kitchen.Groups, 1)

	p, ok := s.Registry().Lookup(RegistryLocation("kitchen", "/World/Chair"))
	require.True(t, ok)
	require.Equal(t, 1, s.Registry().Refs(p.Digest))

	// The same location name is not instanceable in another scene.
	garage, err := s.Scan(ctx, loadScene(t, chairScene("garage", false)))
	require.NoError(t, err)
	assert.Zero(t, garage.Instanceable())

	assert.Equal(t, 1, s.Registry().Refs(p.Digest))
	assert.Equal(t, 1, s.Registry().Len())
	_, ok = s.Registry().Lookup(RegistryLocation("kitchen", "/World/Chair"))
	assert.True(t, ok)

	// With an equal key each scene holds its own reference.
	_, err = s.Scan(ctx, loadScene(t, chairScene("attic", true)))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Registry().Refs(p.Digest))
	assert.Equal(t, 1, s.Registry().Len())
}

func TestScanOverrideOff(t *testing.T) {
	s := newTestScanner(WithConfig(instancing.Config{Override: instancing.OverrideOff}))

	res, err := s.Scan(context.Background(), loadScene(t, diningRoom))
	require.NoError(t, err)

	assert.Equal(t, instancing.OverrideOff, res.Override)
	assert.Zero(t, res.Instanceable())
	assert.Empty(t, res.Groups)
	assert.Zero(t, s.Registry().Len())
}

func TestScanOverrideOffReleasesEarlierPrototypes(t *testing.T) {
	reg := prototype.NewRegistry[string](prototype.WithLogger(quiet()))
	scene := loadScene(t, diningRoom)

	_, err := newTestScanner(WithRegistry(reg)).Scan(context.Background(), scene)
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	off := newTestScanner(WithRegistry(reg), WithConfig(instancing.Config{Override: instancing.OverrideOff}))
	_, err = off.Scan(context.Background(), scene)
	require.NoError(t, err)
	assert.Zero(t, reg.Len())
}

func TestScanOverrideOn(t *testing.T) {
	s := newTestScanner(WithConfig(instancing.Config{Override: instancing.OverrideOn}))

	res, err := s.Scan(context.Background(), loadScene(t, diningRoom))
	require.NoError(t, err)

	// The lamp authors nothing but is forced instanceable.
	assert.Equal(t, 4, res.Instanceable())
	assert.Len(t, res.Groups, 3)
}

func TestScanCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScanner().Scan(ctx, loadScene(t, diningRoom))
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "dining")
}
