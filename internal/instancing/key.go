package instancing

import (
	"encoding/binary"
	"math"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/instkey/internal/ir"
)

// EmptyKeyHash is the hash of the empty key, which every location that
// cannot be instanced shares.
const EmptyKeyHash uint64 = 0

// Key is an instance key. The zero value is the empty key: no arcs, no
// selections, hash EmptyKeyHash. A Key is immutable; accessors return
// copies.
type Key struct {
	arcs       []ir.Arc
	selections []ir.VariantSelection
	hash       uint64
}

// NewKey assembles a key from an arc sequence and a selection sequence.
// Order matters in both. The slices are copied.
func NewKey(arcs []ir.Arc, selections []ir.VariantSelection) Key {
	k := Key{
		arcs:       slices.Clone(arcs),
		selections: slices.Clone(selections),
	}
	k.hash = foldHash(k.arcs, k.selections)
	return k
}

// IsEmpty reports whether k is the empty (non-instance) key.
func (k Key) IsEmpty() bool {
	return len(k.arcs) == 0 && len(k.selections) == 0
}

// Arcs returns a copy of the arc sequence.
func (k Key) Arcs() []ir.Arc {
	return slices.Clone(k.arcs)
}

// VariantSelections returns a copy of the selection sequence.
func (k Key) VariantSelections() []ir.VariantSelection {
	return slices.Clone(k.selections)
}

// Hash returns the precomputed order-sensitive hash. Equal keys have equal
// hashes.
func (k Key) Hash() uint64 {
	return k.hash
}

// Equal reports whether both sequences are equal element by element.
func (k Key) Equal(other Key) bool {
	return k.hash == other.hash &&
		slices.Equal(k.arcs, other.arcs) &&
		slices.Equal(k.selections, other.selections)
}

// Digest returns the stable SHA-256 identity of the key, suitable for
// persisting and for comparing keys across processes. Two keys share a
// digest exactly when they are Equal; strings are digested as raw bytes.
func (k Key) Digest() string {
	return ir.MustKeyDigest(k.arcs, k.selections)
}

// String is a human-readable dump for diagnostics. It is not a stable
// serialization format; use Digest for that.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString("Arcs:\n")
	if len(k.arcs) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, a := range k.arcs {
		b.WriteString("  ")
		b.WriteString(a.String())
		b.WriteByte('\n')
	}
	b.WriteString("Variant selections:\n")
	if len(k.selections) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, s := range k.selections {
		b.WriteString("  ")
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// foldHash combines arcs then selections in sequence. Every string is
// length-prefixed and each section starts with its element count, so
// neither reordering nor shifting content between fields or sections
// yields the same input stream.
func foldHash(arcs []ir.Arc, selections []ir.VariantSelection) uint64 {
	if len(arcs) == 0 && len(selections) == 0 {
		return EmptyKeyHash
	}
	h := hasher{d: xxhash.New()}
	h.uint(uint64(len(arcs)))
	for _, a := range arcs {
		h.string(string(a.Type))
		h.string(a.Site.LayerStack)
		h.string(a.Site.Path)
		h.float(a.Offset.Offset)
		h.float(a.Offset.Scale)
	}
	h.uint(uint64(len(selections)))
	for _, s := range selections {
		h.string(s.Set)
		h.string(s.Selection)
	}
	return h.d.Sum64()
}

type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func (h *hasher) uint(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	h.d.Write(h.buf[:])
}

func (h *hasher) string(s string) {
	h.uint(uint64(len(s)))
	h.d.WriteString(s)
}

// float hashes the bit pattern, with -0 folded into 0 because the two
// compare equal.
func (h *hasher) float(f float64) {
	if f == 0 {
		f = 0
	}
	h.uint(math.Float64bits(f))
}
