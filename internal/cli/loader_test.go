package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/instkey/internal/compiler"
)

const chairScene = `scene: %s
layer_stack: kitchen.usda
locations:
  - name: /Kitchen/Chair
    root:
      site: {path: /Kitchen/Chair}
      instanceable: true
      children:
        - arc: reference
          site: {layer_stack: chair.usda, path: /Chair}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenes(t *testing.T) {
	result, errs := LoadScenes("testdata/scenes", LoadModeFailFast)
	require.Empty(t, errs)
	require.NotNil(t, result)

	assert.Equal(t, 2, result.FileCount)
	require.Len(t, result.Scenes, 3)
	names := make([]string, 0, len(result.Scenes))
	for _, s := range result.Scenes {
		names = append(names, s.Doc.Name)
		assert.NotNil(t, s.Scene, s.Doc.Name)
		assert.NotEmpty(t, s.Digest, s.Doc.Name)
	}
	assert.Equal(t, []string{"kitchen", "warehouse", "yard"}, names)

	assert.Equal(t, filepath.Join("testdata", "scenes", "kitchen.yaml"), result.Scenes[0].Source)
	assert.Equal(t, filepath.Join("testdata", "scenes", "props"), result.Scenes[1].Source)
	assert.Equal(t, result.Scenes[1].Digest, result.Scenes[2].Digest, "scenes of one package share its digest")

	warehouse, ok := result.Scene("warehouse")
	require.True(t, ok)
	assert.Equal(t, []string{"/Warehouse/Crate_1", "/Warehouse/Crate_2"}, warehouse.Scene.Names())

	_, ok = result.Scene("attic")
	assert.False(t, ok)
}

func TestLoadScenesDigestTracksContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "chair.yaml", fmtScene(chairScene, "chairs"))

	first, errs := LoadScenes(dir, LoadModeFailFast)
	require.Empty(t, errs)

	writeFile(t, dir, "chair.yaml", fmtScene(chairScene, "chairs")+"# edited\n")
	second, errs := LoadScenes(dir, LoadModeFailFast)
	require.Empty(t, errs)

	assert.NotEqual(t, first.Scenes[0].Digest, second.Scenes[0].Digest)
}

func TestLoadScenesErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		code  string
	}{
		{
			name:  "missing directory",
			setup: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") },
			code:  ErrCodeNotFound,
		},
		{
			name: "not a directory",
			setup: func(t *testing.T) string {
				return writeFile(t, t.TempDir(), "scene.yaml", fmtScene(chairScene, "chairs"))
			},
			code: ErrCodeNotFound,
		},
		{
			name: "no fixture files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "README.md", "not a scene")
				return dir
			},
			code: ErrCodeNoFiles,
		},
		{
			name: "undecodable yaml",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "bad.yaml", "scene: x\nbogus_field: 1\n")
				return dir
			},
			code: ErrCodeDecodeFailed,
		},
		{
			name: "duplicate scene",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "a.yaml", fmtScene(chairScene, "chairs"))
				writeFile(t, dir, "b.yaml", fmtScene(chairScene, "chairs"))
				return dir
			},
			code: ErrCodeDuplicateScene,
		},
		{
			name: "scene without locations",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "empty.yaml", "scene: empty\nlayer_stack: a.usda\nlocations: []\n")
				return dir
			},
			code: compiler.ErrNoLocations,
		},
		{
			name: "broken cue package",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "bad/bad.cue", "package bad\n\nscene: x: {\n")
				return dir
			},
			code: ErrCodeLoadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadScenes(tt.setup(t), LoadModeFailFast)
			require.NotEmpty(t, errs)

			var loadErr *LoadError
			require.ErrorAs(t, errs[0], &loadErr)
			assert.Equal(t, tt.code, loadErr.Code, loadErr.Error())
		})
	}
}

func TestLoadScenesCollectAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", fmtScene(chairScene, "chairs"))
	writeFile(t, dir, "b.yaml", fmtScene(chairScene, "chairs"))
	writeFile(t, dir, "c.yaml", "scene: empty\nlayer_stack: a.usda\nlocations: []\n")

	failFast, errs := LoadScenes(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Len(t, failFast.Scenes, 1)

	all, errs := LoadScenes(dir, LoadModeCollectAll)
	require.Len(t, errs, 2)
	require.Len(t, all.Scenes, 2, "the duplicate is dropped, the invalid scene is kept unbuilt")
	assert.Len(t, all.Built(), 1)

	var dup, invalid *LoadError
	require.ErrorAs(t, errs[0], &dup)
	require.ErrorAs(t, errs[1], &invalid)
	assert.Equal(t, ErrCodeDuplicateScene, dup.Code)
	assert.Contains(t, dup.Message, filepath.Join(dir, "a.yaml"))
	assert.Equal(t, compiler.ErrNoLocations, invalid.Code)
	assert.Contains(t, invalid.Message, "scene empty:")
}

func TestGroupSources(t *testing.T) {
	files := []string{
		"s/a.yaml",
		"s/pkg/one.cue",
		"s/pkg/two.cue",
		"s/z.yml",
	}
	got := groupSources(files)
	require.Len(t, got, 3)
	assert.Equal(t, sceneSource{path: "s/a.yaml"}, got[0])
	assert.Equal(t, sceneSource{path: "s/pkg", cue: true, files: []string{"s/pkg/one.cue", "s/pkg/two.cue"}}, got[1])
	assert.Equal(t, sceneSource{path: "s/z.yml"}, got[2])
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeCUE, MapFieldToErrorCode("cue"))
	assert.Equal(t, compiler.ErrNoLocations, MapFieldToErrorCode("locations"))
	assert.Equal(t, compiler.ErrInvalidRoot, MapFieldToErrorCode("locations[0].root"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode("layer_stack"))
}

func TestLoadErrorFormat(t *testing.T) {
	withSource := &LoadError{Code: "E008", Message: "bad yaml", Source: "a.yaml"}
	assert.Equal(t, "a.yaml: E008: bad yaml", withSource.Error())

	bare := &LoadError{Code: "E003", Message: "no scene files"}
	assert.Equal(t, "E003: no scene files", bare.Error())

	ve := (&LoadError{Code: "E102", Message: "m", Source: "a.yaml", Line: 4}).ValidationError()
	assert.Equal(t, compiler.ValidationError{Field: "a.yaml", Message: "m", Code: "E102", Line: 4}, ve)
}

func fmtScene(tmpl, name string) string {
	return fmt.Sprintf(tmpl, name)
}
