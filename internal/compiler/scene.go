package compiler

import (
	"cuelang.org/go/cue/token"

	"github.com/roach88/instkey/internal/graph"
)

// SceneDoc is a scene fixture as written, before validation. The same
// shape is read from CUE (CompileScene) and YAML (DecodeSceneYAML).
type SceneDoc struct {
	Name string `yaml:"scene"`

	// LayerStack is used for every site that does not name its own.
	LayerStack string        `yaml:"layer_stack,omitempty"`
	Locations  []LocationDoc `yaml:"locations"`
}

// LocationDoc is one composed location: a graph rooted at Root.
type LocationDoc struct {
	Name string `yaml:"name"`

	// HasPayloads is derived from the node tree when nil.
	HasPayloads *bool `yaml:"has_payloads,omitempty"`

	// SupportsInstancing defaults to true.
	SupportsInstancing *bool   `yaml:"supports_instancing,omitempty"`
	Root               NodeDoc `yaml:"root"`

	pos token.Pos
}

// NodeDoc is one node of a location's graph. Children are listed
// strongest first.
type NodeDoc struct {
	Arc           string     `yaml:"arc"`
	Site          SiteDoc    `yaml:"site"`
	Offset        *OffsetDoc `yaml:"offset,omitempty"`
	DueToAncestor bool       `yaml:"due_to_ancestor,omitempty"`

	// HasSpecs defaults to true.
	HasSpecs *bool `yaml:"has_specs,omitempty"`
	Culled   bool  `yaml:"culled,omitempty"`
	Inert    bool  `yaml:"inert,omitempty"`

	// VariantSelections authored at the node's site, set -> selection.
	VariantSelections map[string]string `yaml:"variant_selections,omitempty"`

	// Instanceable is nil when nothing is authored at the node's site.
	Instanceable *bool     `yaml:"instanceable,omitempty"`
	Children     []NodeDoc `yaml:"children,omitempty"`

	pos token.Pos
}

// SiteDoc names a site. An empty LayerStack inherits the scene's.
type SiteDoc struct {
	LayerStack string `yaml:"layer_stack,omitempty"`
	Path       string `yaml:"path"`
}

// OffsetDoc is a layer offset. A missing Scale is 1.
type OffsetDoc struct {
	Offset float64  `yaml:"offset"`
	Scale  *float64 `yaml:"scale,omitempty"`
}

// Scene is a validated scene with one built graph per location.
type Scene struct {
	Name      string
	Locations []Location
}

// Location is a named composition graph.
type Location struct {
	Name  string
	Graph *graph.Index
}

// Location looks up a location by name.
func (s *Scene) Location(name string) (Location, bool) {
	for _, loc := range s.Locations {
		if loc.Name == name {
			return loc, true
		}
	}
	return Location{}, false
}

// Names returns the location names in fixture order.
func (s *Scene) Names() []string {
	names := make([]string, len(s.Locations))
	for i, loc := range s.Locations {
		names[i] = loc.Name
	}
	return names
}
