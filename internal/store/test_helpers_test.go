package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/instkey/internal/instancing"
	"github.com/roach88/instkey/internal/ir"
	"github.com/roach88/instkey/internal/scan"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// refKey is a key with a single reference arc to path.
func refKey(path string) instancing.Key {
	return instancing.NewKey([]ir.Arc{{
		Type:   ir.ArcReference,
		Offset: ir.IdentityOffset,
		Site:   ir.Site{LayerStack: "asset.usda", Path: path},
	}}, []ir.VariantSelection{{Set: "look", Selection: "red"}})
}

// createTestResult builds a scan result. keys maps location to key; an
// empty key makes the location non-instanceable. locations fixes order.
func createTestResult(runID string, seq int64, locations []string, keys map[string]instancing.Key) *scan.Result {
	res := &scan.Result{
		RunID: runID,
		Seq:   seq,
		Scene: "dining",
	}
	for _, loc := range locations {
		lr := scan.LocationResult{Location: loc, Key: keys[loc], Group: scan.NoGroup}
		if lr.Instanceable() {
			lr.Group = 0
			lr.PrototypeID = "proto-1"
		}
		res.Locations = append(res.Locations, lr)
	}
	return res
}
