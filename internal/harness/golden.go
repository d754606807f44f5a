package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/instkey/internal/store"
)

// Snapshot renders the stored locations of a run as stable text: one
// block per location in byte order of name, each with its group, its
// prototype and its key dump. Digests are left out so that snapshots stay
// reviewable by eye.
func Snapshot(scenarioName string, result *Result) []byte {
	var buf strings.Builder

	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)
	if result.Scan != nil {
		fmt.Fprintf(&buf, "scene: %s\n", result.Scan.Scene)
		fmt.Fprintf(&buf, "override: %s\n", result.Scan.Override)
		fmt.Fprintf(&buf, "groups: %d\n", len(result.Scan.Groups))
	}

	for _, rec := range result.Locations {
		buf.WriteByte('\n')
		writeLocation(&buf, rec)
	}

	return []byte(buf.String())
}

func writeLocation(buf *strings.Builder, rec store.LocationRecord) {
	if !rec.Instanceable {
		fmt.Fprintf(buf, "%s not instanceable\n", rec.Location)
		return
	}
	fmt.Fprintf(buf, "%s group=%d prototype=%s\n", rec.Location, rec.Group, rec.PrototypeID)
	buf.WriteString(rec.Dump)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
