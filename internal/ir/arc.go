package ir

import (
	"fmt"
	"math"
	"strconv"
)

// ValidOffset reports whether o can appear in a key: finite values and a
// positive scale. NaN would break key equality.
func ValidOffset(o LayerOffset) bool {
	return !math.IsNaN(o.Offset) && !math.IsInf(o.Offset, 0) &&
		!math.IsNaN(o.Scale) && !math.IsInf(o.Scale, 0) && o.Scale > 0
}

// ArcType is the category of composition arc that introduced a node.
type ArcType string

const (
	ArcRoot       ArcType = "root"
	ArcReference  ArcType = "reference"
	ArcPayload    ArcType = "payload"
	ArcInherit    ArcType = "inherit"
	ArcSpecialize ArcType = "specialize"
	ArcVariant    ArcType = "variant"
	ArcOther      ArcType = "other"
)

// ValidArcTypes defines the closed set of arc categories.
var ValidArcTypes = map[ArcType]bool{
	ArcRoot:       true,
	ArcReference:  true,
	ArcPayload:    true,
	ArcInherit:    true,
	ArcSpecialize: true,
	ArcVariant:    true,
	ArcOther:      true,
}

// Site identifies where a node's opinions come from: a layer stack and a
// path inside it.
type Site struct {
	LayerStack string `json:"layer_stack" yaml:"layer_stack"`
	Path       string `json:"path" yaml:"path"`
}

// String renders the site as @layerStack@<path>.
func (s Site) String() string {
	return fmt.Sprintf("@%s@<%s>", s.LayerStack, s.Path)
}

// LayerOffset is the time offset and scale applied across an arc.
type LayerOffset struct {
	Offset float64 `json:"offset" yaml:"offset"`
	Scale  float64 `json:"scale" yaml:"scale"`
}

// IdentityOffset maps every time to itself.
var IdentityOffset = LayerOffset{Offset: 0, Scale: 1}

// IsIdentity reports whether the offset is the identity mapping.
func (o LayerOffset) IsIdentity() bool {
	return o == IdentityOffset
}

func (o LayerOffset) String() string {
	return fmt.Sprintf("(offset=%s, scale=%s)", formatFloat(o.Offset), formatFloat(o.Scale))
}

// Arc is the record kept for every eligible node: what kind of arc brought
// the node in, at what time offset, and from which site.
//
// Arc is comparable; two arcs are equal iff all three fields are equal.
type Arc struct {
	Type   ArcType     `json:"arc"`
	Offset LayerOffset `json:"offset"`
	Site   Site        `json:"site"`
}

func (a Arc) String() string {
	return fmt.Sprintf("%s %s %s", a.Type, a.Site, a.Offset)
}

// Canonical returns the canonical IR form of the arc.
func (a Arc) Canonical() IRObject {
	return IRObject{
		"arc":         IRString(a.Type),
		"layer_stack": IRString(a.Site.LayerStack),
		"path":        IRString(a.Site.Path),
		"offset":      IRString(formatFloat(a.Offset.Offset)),
		"scale":       IRString(formatFloat(a.Offset.Scale)),
	}
}

// VariantSelection is one authored selection for a variant set.
type VariantSelection struct {
	Set       string `json:"set"`
	Selection string `json:"selection"`
}

func (v VariantSelection) String() string {
	return v.Set + " = " + v.Selection
}

// Canonical returns the canonical IR form of the selection as a
// two-element array, preserving set-then-selection order.
func (v VariantSelection) Canonical() IRArray {
	return IRArray{IRString(v.Set), IRString(v.Selection)}
}

// formatFloat renders the shortest decimal that round-trips. Negative zero
// is folded into zero so that -0 and 0 offsets digest identically.
func formatFloat(f float64) string {
	if f == 0 {
		f = 0
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
