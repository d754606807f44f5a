package harness

import (
	"github.com/roach88/instkey/internal/scan"
	"github.com/roach88/instkey/internal/store"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold and the rescan replayed clean.
	Pass bool `json:"pass"`

	// Errors contains assertion and replay failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Scan is the first scan, the one written to the catalog.
	Scan *scan.Result `json:"-"`

	// Locations are the stored rows of the first scan, in byte order of
	// location name.
	Locations []store.LocationRecord `json:"-"`

	// Replay compares the rescan with the first scan.
	Replay store.ReplayReport `json:"replay"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
