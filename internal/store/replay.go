package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/instkey/internal/scan"
)

// ErrNoBaseline is returned by Replay when the scene has no stored run to
// compare against.
var ErrNoBaseline = errors.New("store: no stored scan of scene")

// ChangeKind classifies a location difference between two runs.
type ChangeKind string

const (
	ChangeKeyChanged ChangeKind = "changed"
	ChangeAdded      ChangeKind = "added"
	ChangeRemoved    ChangeKind = "removed"
)

// Change is one location that differs from the baseline run.
type Change struct {
	Location  string     `json:"location"`
	Kind      ChangeKind `json:"kind"`
	OldDigest string     `json:"old_digest,omitempty"`
	NewDigest string     `json:"new_digest,omitempty"`

	// OldDump and NewDump are the debug dumps, set for ChangeKeyChanged.
	OldDump string `json:"old_dump,omitempty"`
	NewDump string `json:"new_dump,omitempty"`
}

// ReplayReport compares a fresh scan with the latest stored scan of the
// same scene.
type ReplayReport struct {
	Scene         string   `json:"scene"`
	BaselineRunID string   `json:"baseline_run_id"`
	BaselineSeq   int64    `json:"baseline_seq"`
	SceneEdited   bool     `json:"scene_edited"`
	Unchanged     int      `json:"unchanged"`
	Changes       []Change `json:"changes"`

	// BaselineOverride is the instanceable override the baseline ran
	// under. Keys of instanceable locations follow it, so a different
	// override usually explains every change.
	BaselineOverride string `json:"baseline_override"`
	OverrideChanged  bool   `json:"override_changed"`
}

// Clean reports whether every location kept its key.
func (r ReplayReport) Clean() bool {
	return len(r.Changes) == 0
}

// Replay compares res with the most recent stored run of res.Scene other
// than res itself. sceneDigest is the digest of the fixture res was
// compiled from; a mismatch with the baseline sets SceneEdited. A baseline
// scanned under another override sets OverrideChanged.
//
// Changes are ordered by location (byte order).
func (s *Store) Replay(ctx context.Context, res *scan.Result, sceneDigest string) (ReplayReport, error) {
	report := ReplayReport{Scene: res.Scene, Changes: []Change{}}

	base, ok, err := s.LatestScan(ctx, res.Scene, res.RunID)
	if err != nil {
		return report, fmt.Errorf("replay: %w", err)
	}
	if !ok {
		return report, fmt.Errorf("replay %s: %w", res.Scene, ErrNoBaseline)
	}
	report.BaselineRunID = base.RunID
	report.BaselineSeq = base.Seq
	report.SceneEdited = base.SceneDigest != sceneDigest
	report.BaselineOverride = base.Override
	report.OverrideChanged = base.Override != res.Override.String()

	stored, err := s.ReadLocations(ctx, base.RunID)
	if err != nil {
		return report, fmt.Errorf("replay: %w", err)
	}
	old := make(map[string]LocationRecord, len(stored))
	for _, rec := range stored {
		old[rec.Location] = rec
	}

	seen := make(map[string]bool, len(res.Locations))
	for _, lr := range res.Locations {
		seen[lr.Location] = true
		digest := lr.Key.Digest()
		prev, ok := old[lr.Location]
		switch {
		case !ok:
			report.Changes = append(report.Changes, Change{
				Location:  lr.Location,
				Kind:      ChangeAdded,
				NewDigest: digest,
			})
		case prev.KeyDigest != digest:
			report.Changes = append(report.Changes, Change{
				Location:  lr.Location,
				Kind:      ChangeKeyChanged,
				OldDigest: prev.KeyDigest,
				NewDigest: digest,
				OldDump:   prev.Dump,
				NewDump:   lr.Key.String(),
			})
		default:
			report.Unchanged++
		}
	}
	for _, rec := range stored {
		if !seen[rec.Location] {
			report.Changes = append(report.Changes, Change{
				Location:  rec.Location,
				Kind:      ChangeRemoved,
				OldDigest: rec.KeyDigest,
			})
		}
	}

	sort.Slice(report.Changes, func(i, j int) bool {
		return report.Changes[i].Location < report.Changes[j].Location
	})
	return report, nil
}
