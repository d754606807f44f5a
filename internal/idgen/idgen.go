// Package idgen hands out identifiers for scan runs and prototypes.
package idgen

import "github.com/google/uuid"

// Generator produces unique ids. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so run ids sort
// by creation time in the catalog.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
