package store

import (
	"fmt"

	"github.com/roach88/instkey/internal/instancing"
	"github.com/roach88/instkey/internal/ir"
)

// marshalKey converts a key to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON, the same bytes the key digest hashes.
func marshalKey(k instancing.Key) (string, error) {
	data, err := ir.MarshalCanonical(ir.CanonicalKey(k.Arcs(), k.VariantSelections()))
	if err != nil {
		return "", fmt.Errorf("marshal key: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
