package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/instkey/internal/compiler"
	"github.com/roach88/instkey/internal/instancing"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Scene is the path of a scene fixture (.yaml or .cue), relative to
	// the scenario file. Exactly one of Scene and Fixture is set.
	Scene string `yaml:"scene,omitempty"`

	// SceneName picks one scene when a CUE fixture holds several.
	SceneName string `yaml:"scene_name,omitempty"`

	// Fixture is an inline scene.
	Fixture *compiler.SceneDoc `yaml:"fixture,omitempty"`

	// Override is default, off or on. Empty means default.
	Override string `yaml:"override,omitempty"`

	// Assertions validate the scan.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion checks one property of a scan.
type Assertion struct {
	// Type specifies the assertion type:
	// - "instanceable": Location is (or, with expect: false, is not) instanceable
	// - "same_key": All locations have equal keys
	// - "distinct_keys": No two locations have equal keys
	// - "arcs": Location's key records exactly these arcs, in order
	// - "selections": Location's key records exactly these selections, in order
	// - "group_count": Number of instance groups
	Type string `yaml:"type"`

	// Location is used by instanceable, arcs and selections.
	Location string `yaml:"location,omitempty"`

	// Locations is used by same_key and distinct_keys.
	Locations []string `yaml:"locations,omitempty"`

	// Expect is the expected flag for instanceable. Default true.
	Expect *bool `yaml:"expect,omitempty"`

	// Arcs are ir.Arc strings, e.g. "reference @a.usda@</A> (offset=0, scale=1)".
	Arcs []string `yaml:"arcs,omitempty"`

	// Selections are "set = selection" strings.
	Selections []string `yaml:"selections,omitempty"`

	// Count is used by group_count.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertInstanceable = "instanceable"
	AssertSameKey      = "same_key"
	AssertDistinctKeys = "distinct_keys"
	AssertArcs         = "arcs"
	AssertSelections   = "selections"
	AssertGroupCount   = "group_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Scene path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Scene != "" && !filepath.IsAbs(scenario.Scene) {
		scenario.Scene = filepath.Join(filepath.Dir(path), scenario.Scene)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Scene == "" && s.Fixture == nil:
		return fmt.Errorf("one of scene or fixture is required")
	case s.Scene != "" && s.Fixture != nil:
		return fmt.Errorf("scene and fixture are mutually exclusive")
	}

	if s.Scene != "" {
		if _, err := os.Stat(s.Scene); os.IsNotExist(err) {
			return fmt.Errorf("scene file not found: %s", s.Scene)
		}
	}

	if _, err := instancing.ParseOverride(s.Override); err != nil {
		return err
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertInstanceable, AssertArcs, AssertSelections:
		if a.Location == "" {
			return fmt.Errorf("assertions[%d]: location is required for %s", index, a.Type)
		}
	case AssertSameKey, AssertDistinctKeys:
		if len(a.Locations) < 2 {
			return fmt.Errorf("assertions[%d]: at least two locations are required for %s", index, a.Type)
		}
	case AssertGroupCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for group_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
