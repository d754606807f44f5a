package compiler

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/instkey/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrSceneNameEmpty      = "E101" // scene name is required
	ErrNoLocations         = "E102" // at least one location required
	ErrDuplicateLocation   = "E103" // location names must be unique
	ErrInvalidRoot         = "E104" // root node must be a plain root arc
	ErrInvalidArc          = "E105" // unknown arc type, or root below the root
	ErrInvalidOffset       = "E106" // scale must be finite and positive
	ErrEmptyPath           = "E107" // every node needs a site path
	ErrArcCycle            = "E108" // site repeats one of its ancestors
	ErrConflictingOpinions = "E109" // one site authored two ways
	ErrNotNFC              = "E110" // names must be NFC normalized
)

// ValidationError represents a scene validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is returned by Build when Validate reports problems.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks a scene document.
// Returns all errors found (does not fail-fast).
func Validate(doc *SceneDoc) []ValidationError {
	var errs []ValidationError

	// E101: name is required
	if strings.TrimSpace(doc.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "scene",
			Message: "scene name is required and must be non-empty",
			Code:    ErrSceneNameEmpty,
		})
	}

	// E102: at least one location
	if len(doc.Locations) == 0 {
		errs = append(errs, ValidationError{
			Field:   "locations",
			Message: "at least one location is required",
			Code:    ErrNoLocations,
		})
	}

	// E110: keys compare raw bytes, so a name spelled in two Unicode
	// forms would silently split one asset into two instances.
	if !norm.NFC.IsNormalString(doc.LayerStack) {
		errs = append(errs, notNFC("layer_stack", doc.LayerStack, 0))
	}

	names := make(map[string]bool)
	for i := range doc.Locations {
		loc := &doc.Locations[i]
		field := fmt.Sprintf("locations[%d]", i)

		// E103: duplicate or empty location name
		switch {
		case strings.TrimSpace(loc.Name) == "":
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: "location name is required",
				Code:    ErrDuplicateLocation,
				Line:    loc.pos.Line(),
			})
		case names[loc.Name]:
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate location name: %q", loc.Name),
				Code:    ErrDuplicateLocation,
				Line:    loc.pos.Line(),
			})
		}
		names[loc.Name] = true
		if !norm.NFC.IsNormalString(loc.Name) {
			errs = append(errs, notNFC(field+".name", loc.Name, loc.pos.Line()))
		}

		v := &locationValidator{
			layerStack: doc.LayerStack,
			opinions:   make(map[ir.Site]opinionSeen),
		}
		v.validateRoot(&loc.Root, field+".root")
		errs = append(errs, v.errs...)
	}

	return errs
}

// opinionSeen remembers the first node to author opinions at a site.
type opinionSeen struct {
	field        string
	selections   map[string]string
	instanceable *bool
}

type locationValidator struct {
	layerStack string
	opinions   map[ir.Site]opinionSeen
	errs       []ValidationError
}

func (v *locationValidator) add(n *NodeDoc, field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
		Line:    n.pos.Line(),
	})
}

func (v *locationValidator) validateRoot(root *NodeDoc, field string) {
	// E104: the root is the location itself; it is never carried down,
	// culled, inert or offset.
	if root.Arc != "" && root.Arc != string(ir.ArcRoot) {
		v.add(root, field+".arc", ErrInvalidRoot, "root node must have arc %q, got %q", ir.ArcRoot, root.Arc)
	}
	if root.DueToAncestor || root.Culled || root.Inert {
		v.add(root, field, ErrInvalidRoot, "root node cannot be due_to_ancestor, culled or inert")
	}
	if root.Offset != nil && resolveOffset(root.Offset) != ir.IdentityOffset {
		v.add(root, field+".offset", ErrInvalidRoot, "root node must have the identity offset")
	}
	v.validateNode(root, field, nil)
}

// validateNode checks n and its subtree. ancestors holds the sites on the
// path from the root down to n's parent.
func (v *locationValidator) validateNode(n *NodeDoc, field string, ancestors []ir.Site) {
	isRoot := ancestors == nil

	// E105: arc category
	if !isRoot {
		switch {
		case n.Arc == string(ir.ArcRoot):
			v.add(n, field+".arc", ErrInvalidArc, "only the root node may have arc %q", ir.ArcRoot)
		case !ir.ValidArcTypes[ir.ArcType(n.Arc)]:
			v.add(n, field+".arc", ErrInvalidArc, "invalid arc type %q", n.Arc)
		}
	}

	// E106: offset
	if n.Offset != nil && !ir.ValidOffset(resolveOffset(n.Offset)) {
		v.add(n, field+".offset", ErrInvalidOffset, "invalid layer offset %s: scale must be finite and > 0",
			resolveOffset(n.Offset))
	}

	// E107: site path
	site := resolveSite(n.Site, v.layerStack)
	if strings.TrimSpace(site.Path) == "" {
		v.add(n, field+".site.path", ErrEmptyPath, "site path is required")
	}

	// E110: Unicode form
	if !norm.NFC.IsNormalString(n.Site.LayerStack) {
		v.errs = append(v.errs, notNFC(field+".site.layer_stack", n.Site.LayerStack, n.pos.Line()))
	}
	if !norm.NFC.IsNormalString(n.Site.Path) {
		v.errs = append(v.errs, notNFC(field+".site.path", n.Site.Path, n.pos.Line()))
	}
	for _, set := range slices.Sorted(maps.Keys(n.VariantSelections)) {
		if !norm.NFC.IsNormalString(set) {
			v.errs = append(v.errs, notNFC(field+".variant_selections", set, n.pos.Line()))
		}
		if sel := n.VariantSelections[set]; !norm.NFC.IsNormalString(sel) {
			v.errs = append(v.errs, notNFC(field+".variant_selections."+set, sel, n.pos.Line()))
		}
	}

	// E108: arc cycle
	for _, anc := range ancestors {
		if anc == site {
			v.add(n, field+".site", ErrArcCycle, "site %s already appears above this node", site)
			break
		}
	}

	// E109: opinions must agree wherever a site is reached twice
	if len(n.VariantSelections) > 0 || n.Instanceable != nil {
		if prev, ok := v.opinions[site]; ok {
			if conflicting(prev, n) {
				v.add(n, field, ErrConflictingOpinions, "opinions at %s differ from %s", site, prev.field)
			}
		} else {
			v.opinions[site] = opinionSeen{field: field, selections: n.VariantSelections, instanceable: n.Instanceable}
		}
	}

	path := append(ancestors[:len(ancestors):len(ancestors)], site)
	for i := range n.Children {
		v.validateNode(&n.Children[i], fmt.Sprintf("%s.children[%d]", field, i), path)
	}
}

func notNFC(field, value string, line int) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%q is not NFC normalized (use %q)", value, norm.NFC.String(value)),
		Code:    ErrNotNFC,
		Line:    line,
	}
}

func conflicting(prev opinionSeen, n *NodeDoc) bool {
	if prev.instanceable != nil && n.Instanceable != nil && *prev.instanceable != *n.Instanceable {
		return true
	}
	if len(prev.selections) > 0 && len(n.VariantSelections) > 0 && !maps.Equal(prev.selections, n.VariantSelections) {
		return true
	}
	return false
}
