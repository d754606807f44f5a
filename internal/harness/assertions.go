package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/instkey/internal/instancing"
	"github.com/roach88/instkey/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Location string // Location the assertion is about, if any
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Dump     string // Key dump of Location, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Location != "" {
		fmt.Fprintf(&buf, " (%s)", e.Location)
	}
	buf.WriteByte('\n')

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Dump != "" {
		fmt.Fprintf(&buf, "\nKey:\n")
		for _, line := range strings.Split(strings.TrimRight(e.Dump, "\n"), "\n") {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}

	return buf.String()
}

// AssertionContext gives assertions access to the catalog run.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// Key digests are read back from the catalog through actx.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertInstanceable:
			err = assertInstanceable(result, assertion)
		case AssertSameKey, AssertDistinctKeys:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else {
				err = assertKeyEquality(actx, assertion)
			}
		case AssertArcs:
			err = assertArcs(result, assertion)
		case AssertSelections:
			err = assertSelections(result, assertion)
		case AssertGroupCount:
			err = assertGroupCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func findKey(result *Result, location string) (instancing.Key, bool) {
	if result.Scan == nil {
		return instancing.Key{}, false
	}
	for _, lr := range result.Scan.Locations {
		if lr.Location == location {
			return lr.Key, true
		}
	}
	return instancing.Key{}, false
}

func missingLocation(typ, location string) error {
	return &AssertionError{
		Type:     typ,
		Location: location,
		Expected: "location present in scene",
		Actual:   "not found",
	}
}

func assertInstanceable(result *Result, a Assertion) error {
	want := a.Expect == nil || *a.Expect
	for _, rec := range result.Locations {
		if rec.Location != a.Location {
			continue
		}
		if rec.Instanceable == want {
			return nil
		}
		return &AssertionError{
			Type:     AssertInstanceable,
			Location: a.Location,
			Expected: fmt.Sprintf("instanceable=%t", want),
			Actual:   fmt.Sprintf("instanceable=%t", rec.Instanceable),
			Dump:     rec.Dump,
		}
	}
	return missingLocation(AssertInstanceable, a.Location)
}

// assertKeyEquality compares stored digests, so it also checks that the
// catalog round-trips key identity.
func assertKeyEquality(actx *AssertionContext, a Assertion) error {
	records, err := actx.Store.ReadLocations(actx.Ctx, actx.RunID)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	digests := make(map[string]string, len(records))
	for _, rec := range records {
		if rec.Instanceable {
			digests[rec.Location] = rec.KeyDigest
		}
	}

	for _, loc := range a.Locations {
		if _, ok := digests[loc]; !ok {
			return &AssertionError{
				Type:     a.Type,
				Location: loc,
				Expected: "an instanceable location",
				Actual:   "no key",
			}
		}
	}

	if a.Type == AssertSameKey {
		first := a.Locations[0]
		for _, loc := range a.Locations[1:] {
			if digests[loc] != digests[first] {
				return &AssertionError{
					Type:     AssertSameKey,
					Expected: fmt.Sprintf("%s and %s share a key", first, loc),
					Actual:   fmt.Sprintf("digests %s and %s", short(digests[first]), short(digests[loc])),
				}
			}
		}
		return nil
	}

	seen := make(map[string]string, len(a.Locations))
	for _, loc := range a.Locations {
		if other, dup := seen[digests[loc]]; dup {
			return &AssertionError{
				Type:     AssertDistinctKeys,
				Expected: fmt.Sprintf("%s and %s have distinct keys", other, loc),
				Actual:   fmt.Sprintf("both have digest %s", short(digests[loc])),
			}
		}
		seen[digests[loc]] = loc
	}
	return nil
}

func assertArcs(result *Result, a Assertion) error {
	key, ok := findKey(result, a.Location)
	if !ok {
		return missingLocation(AssertArcs, a.Location)
	}
	got := make([]string, 0, len(key.Arcs()))
	for _, arc := range key.Arcs() {
		got = append(got, arc.String())
	}
	return compareLists(AssertArcs, a.Location, a.Arcs, got, key)
}

func assertSelections(result *Result, a Assertion) error {
	key, ok := findKey(result, a.Location)
	if !ok {
		return missingLocation(AssertSelections, a.Location)
	}
	got := make([]string, 0, len(key.VariantSelections()))
	for _, sel := range key.VariantSelections() {
		got = append(got, sel.String())
	}
	return compareLists(AssertSelections, a.Location, a.Selections, got, key)
}

func compareLists(typ, location string, want, got []string, key instancing.Key) error {
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Location: location,
		Expected: formatList(want),
		Actual:   formatList(got),
		Dump:     key.String(),
	}
}

func assertGroupCount(result *Result, a Assertion) error {
	got := 0
	if result.Scan != nil {
		got = len(result.Scan.Groups)
	}
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertGroupCount,
		Expected: fmt.Sprintf("%d groups", a.Count),
		Actual:   fmt.Sprintf("%d groups", got),
	}
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return "[" + strings.Join(items, "; ") + "]"
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
