package compiler

import (
	"fmt"
	"sort"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

var (
	sceneFields    = fieldSet("layer_stack", "locations")
	locationFields = fieldSet("name", "has_payloads", "supports_instancing", "root")
	nodeFields     = fieldSet("arc", "site", "offset", "due_to_ancestor", "has_specs",
		"culled", "inert", "variant_selections", "instanceable", "children")
	siteFields   = fieldSet("layer_stack", "path")
	offsetFields = fieldSet("offset", "scale")
)

// CompileScene parses a CUE value into a SceneDoc.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the scene struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`scene: kitchen: { locations: [...] }`)
//	doc, err := CompileScene(v.LookupPath(cue.ParsePath("scene.kitchen")))
//
// The result is not validated; pass it to Build.
func CompileScene(v cue.Value) (*SceneDoc, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := checkFields(v, "scene", sceneFields); err != nil {
		return nil, err
	}

	doc := &SceneDoc{}

	// Scene name from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		doc.Name = unquoteLabel(labels[len(labels)-1].String())
	}

	var err error
	if doc.LayerStack, err = optString(v, "layer_stack"); err != nil {
		return nil, err
	}

	locsVal := v.LookupPath(cue.ParsePath("locations"))
	if !locsVal.Exists() {
		return nil, &CompileError{
			Field:   "locations",
			Message: "locations is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := locsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		loc, err := parseLocation(iter.Value(), fmt.Sprintf("locations[%d]", i))
		if err != nil {
			return nil, err
		}
		doc.Locations = append(doc.Locations, loc)
	}

	return doc, nil
}

func parseLocation(v cue.Value, field string) (LocationDoc, error) {
	loc := LocationDoc{pos: v.Pos()}
	if err := checkFields(v, field, locationFields); err != nil {
		return loc, err
	}

	var err error
	if loc.Name, err = optString(v, "name"); err != nil {
		return loc, err
	}
	if loc.HasPayloads, err = optBool(v, "has_payloads"); err != nil {
		return loc, err
	}
	if loc.SupportsInstancing, err = optBool(v, "supports_instancing"); err != nil {
		return loc, err
	}

	rootVal := v.LookupPath(cue.ParsePath("root"))
	if !rootVal.Exists() {
		return loc, &CompileError{
			Field:   field + ".root",
			Message: "root node is required",
			Pos:     v.Pos(),
		}
	}
	loc.Root, err = parseNode(rootVal, field+".root")
	return loc, err
}

// parseNode reads a node and, recursively, its children.
func parseNode(v cue.Value, field string) (NodeDoc, error) {
	n := NodeDoc{pos: v.Pos()}
	if err := checkFields(v, field, nodeFields); err != nil {
		return n, err
	}

	var err error
	if n.Arc, err = optString(v, "arc"); err != nil {
		return n, err
	}

	siteVal := v.LookupPath(cue.ParsePath("site"))
	if siteVal.Exists() {
		if err := checkFields(siteVal, field+".site", siteFields); err != nil {
			return n, err
		}
		if n.Site.LayerStack, err = optString(siteVal, "layer_stack"); err != nil {
			return n, err
		}
		if n.Site.Path, err = optString(siteVal, "path"); err != nil {
			return n, err
		}
	}

	offsetVal := v.LookupPath(cue.ParsePath("offset"))
	if offsetVal.Exists() {
		if err := checkFields(offsetVal, field+".offset", offsetFields); err != nil {
			return n, err
		}
		off := &OffsetDoc{}
		offset, err := optFloat(offsetVal, "offset")
		if err != nil {
			return n, err
		}
		if offset != nil {
			off.Offset = *offset
		}
		if off.Scale, err = optFloat(offsetVal, "scale"); err != nil {
			return n, err
		}
		n.Offset = off
	}

	for _, flag := range []struct {
		name string
		dst  *bool
	}{
		{"due_to_ancestor", &n.DueToAncestor},
		{"culled", &n.Culled},
		{"inert", &n.Inert},
	} {
		b, err := optBool(v, flag.name)
		if err != nil {
			return n, err
		}
		if b != nil {
			*flag.dst = *b
		}
	}
	if n.HasSpecs, err = optBool(v, "has_specs"); err != nil {
		return n, err
	}
	if n.Instanceable, err = optBool(v, "instanceable"); err != nil {
		return n, err
	}

	selsVal := v.LookupPath(cue.ParsePath("variant_selections"))
	if selsVal.Exists() {
		selIter, err := selsVal.Fields()
		if err != nil {
			return n, formatCUEError(err)
		}
		n.VariantSelections = make(map[string]string)
		for selIter.Next() {
			s, err := selIter.Value().String()
			if err != nil {
				return n, formatCUEError(err)
			}
			n.VariantSelections[selIter.Selector().Unquoted()] = s
		}
	}

	childrenVal := v.LookupPath(cue.ParsePath("children"))
	if childrenVal.Exists() {
		childIter, err := childrenVal.List()
		if err != nil {
			return n, formatCUEError(err)
		}
		for i := 0; childIter.Next(); i++ {
			child, err := parseNode(childIter.Value(), fmt.Sprintf("%s.children[%d]", field, i))
			if err != nil {
				return n, err
			}
			n.Children = append(n.Children, child)
		}
	}

	return n, nil
}

// checkFields rejects labels outside allowed, mirroring the strict YAML
// decoder.
func checkFields(v cue.Value, field string, allowed map[string]bool) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	var unknown []string
	for iter.Next() {
		if label := iter.Selector().Unquoted(); !allowed[label] {
			unknown = append(unknown, label)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return &CompileError{
		Field:   field,
		Message: fmt.Sprintf("unknown field %q", unknown[0]),
		Pos:     v.Pos(),
	}
}

func optString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optBool(v cue.Value, field string) (*bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil, nil
	}
	b, err := f.Bool()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &b, nil
}

func optFloat(v cue.Value, field string) (*float64, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil, nil
	}
	x, err := f.Float64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &x, nil
}

func fieldSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func unquoteLabel(s string) string {
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
