package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/instkey/internal/instancing"
)

func runKeyCmd(t *testing.T, root *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewKeyCommand(root)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestKeyCommand_Text(t *testing.T) {
	out, err := runKeyCmd(t, &RootOptions{Format: "text"}, "testdata/scenes/kitchen.yaml")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Scene: kitchen (override=default)\n"), out)
	assert.Contains(t, out, "\n  Arcs:\n    reference @chair.usda@</Chair> (offset=10, scale=2)\n")
	assert.Contains(t, out, "  Variant selections:\n    lod = high\n    look = red\n")
	assert.Contains(t, out, "  Variant selections:\n    (none)\n")
	assert.NotContains(t, out, "_class_Chair", "ancestral arcs are not recorded")
}

func TestKeyCommand_JSON(t *testing.T) {
	out, err := runKeyCmd(t, &RootOptions{Format: "json"}, "testdata/scenes/kitchen.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   KeyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Locations, 2)

	chair1, chair2 := resp.Data.Locations[0], resp.Data.Locations[1]
	assert.Equal(t, "/Kitchen/Chair_1", chair1.Location)
	assert.True(t, chair1.Instanceable)
	assert.Len(t, chair1.Digest, 64)
	assert.Len(t, chair1.Arcs, 1)
	assert.Len(t, chair1.VariantSelections, 2)

	assert.True(t, chair2.Instanceable)
	assert.Empty(t, chair2.VariantSelections)
	assert.NotEqual(t, chair1.Digest, chair2.Digest, "selections distinguish the keys")
}

func TestKeyCommand_OverrideOff(t *testing.T) {
	root := &RootOptions{Format: "text", Config: instancing.Config{Override: instancing.OverrideOff}}
	out, err := runKeyCmd(t, root, "testdata/scenes/kitchen.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "Scene: kitchen (override=off)")
	assert.Contains(t, out, "/Kitchen/Chair_1: not instanceable")
	assert.Contains(t, out, "/Kitchen/Chair_2: not instanceable")
}

func TestKeyCommand_SceneAndLocation(t *testing.T) {
	root := &RootOptions{Format: "text"}

	out, err := runKeyCmd(t, root, "testdata/scenes/props/props.cue", "--scene", "yard")
	require.NoError(t, err)
	assert.Contains(t, out, "/Yard/Barrel: not instanceable")

	out, err = runKeyCmd(t, root, "testdata/scenes/props/props.cue",
		"--scene", "warehouse", "--location", "/Warehouse/Crate_2")
	require.NoError(t, err)
	assert.NotContains(t, out, "Crate_1")
	assert.Contains(t, out, "reference @crate.usda@</Crate> (offset=0, scale=1)")
}

func TestKeyCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"testdata/scenes/attic.yaml"}, "Error [E005]"},
		{"ambiguous scene", []string{"testdata/scenes/props/props.cue"}, "2 scenes found; use --scene"},
		{"unknown scene", []string{"testdata/scenes/props/props.cue", "--scene", "attic"}, `no scene named "attic"`},
		{"unknown location", []string{"testdata/scenes/kitchen.yaml", "--location", "/Kitchen/Table"}, `no location "/Kitchen/Table"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runKeyCmd(t, &RootOptions{Format: "text"}, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestKeyCommand_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	_, err := runKeyCmd(t, &RootOptions{Format: "text"}, "testdata/scenes/kitchen.yaml", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Scene     string `json:"scene"`
		Override  string `json:"override"`
		Locations []struct {
			Location     string          `json:"location"`
			Instanceable bool            `json:"instanceable"`
			Digest       string          `json:"digest"`
			Key          json.RawMessage `json:"key"`
		} `json:"locations"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "kitchen", doc.Scene)
	assert.Equal(t, "default", doc.Override)
	require.Len(t, doc.Locations, 2)
	assert.Equal(t, "/Kitchen/Chair_1", doc.Locations[0].Location)
	assert.NotEmpty(t, doc.Locations[0].Key)

	// Canonical output is stable.
	again := filepath.Join(t.TempDir(), "again.json")
	_, err = runKeyCmd(t, &RootOptions{Format: "text"}, "testdata/scenes/kitchen.yaml", "-o", again)
	require.NoError(t, err)
	data2, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, data, data2)
}
