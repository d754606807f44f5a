package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/instkey/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Scene    string // optional - filter runs to one scene
	RunID    string // optional - show one run's locations
	Digest   string // optional - show every location that had this key
}

// RunEntry is one recorded scan.
type RunEntry struct {
	RunID       string `json:"run_id"`
	Seq         int64  `json:"seq"`
	Scene       string `json:"scene"`
	SceneDigest string `json:"scene_digest"`
	Override    string `json:"override"`
	ToolVersion string `json:"tool_version"`
}

// LocationEntry is one location of a recorded scan.
type LocationEntry struct {
	Location     string `json:"location"`
	Instanceable bool   `json:"instanceable"`
	Digest       string `json:"digest,omitempty"`
	Group        int    `json:"group"`
	PrototypeID  string `json:"prototype_id,omitempty"`
	Arcs         int    `json:"arcs"`
	Selections   int    `json:"selections"`
	Key          string `json:"-"`
}

// RunDetail is one run with its locations.
type RunDetail struct {
	Run       RunEntry        `json:"run"`
	Locations []LocationEntry `json:"locations"`
}

// KeyUseEntry is one location that had a given key.
type KeyUseEntry struct {
	RunID    string `json:"run_id"`
	Seq      int64  `json:"seq"`
	Location string `json:"location"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query recorded scans",
		Long: `Query the scan catalog.

Without --run or --digest, lists recorded runs (optionally of one scene)
in sequence order. --run shows every location of one run with its key
digest, group and prototype. --digest lists every recorded location that
had that key, across runs.

Examples:
  instkey history --db ./instkey.db
  instkey history --db ./instkey.db --scene kitchen
  instkey history --db ./instkey.db --run 0190d7e4-...
  instkey history --db ./instkey.db --digest 3f2a... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Scene, "scene", "", "only runs of this scene")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the locations of this run")
	cmd.Flags().StringVar(&opts.Digest, "digest", "", "show every location recorded with this key digest")
	cmd.MarkFlagsMutuallyExclusive("run", "digest")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	switch {
	case opts.RunID != "":
		rec, err := st.ReadScan(ctx, opts.RunID)
		if errors.Is(err, store.ErrNotFound) {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no run %s", opts.RunID), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		locs, err := st.ReadLocations(ctx, rec.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read locations", err)
		}
		detail := RunDetail{Run: runEntry(rec), Locations: make([]LocationEntry, 0, len(locs))}
		for _, l := range locs {
			detail.Locations = append(detail.Locations, locationEntry(l))
		}
		return formatter.Emit(detail, func(w io.Writer) { outputRunDetailText(w, detail, opts.Verbose) })

	case opts.Digest != "":
		uses, err := st.LocationsWithKey(ctx, opts.Digest)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query key", err)
		}
		entries := make([]KeyUseEntry, 0, len(uses))
		for _, u := range uses {
			entries = append(entries, KeyUseEntry{RunID: u.RunID, Seq: u.Seq, Location: u.Location})
		}
		return formatter.Emit(entries, func(w io.Writer) {
			if len(entries) == 0 {
				fmt.Fprintf(w, "No locations recorded with key %s\n", shortDigest(opts.Digest))
				return
			}
			for _, e := range entries {
				fmt.Fprintf(w, "%-6d %s %s\n", e.Seq, e.RunID, e.Location)
			}
		})

	default:
		recs, err := st.ListScans(ctx, opts.Scene)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		runs := make([]RunEntry, 0, len(recs))
		for _, r := range recs {
			runs = append(runs, runEntry(r))
		}
		return formatter.Emit(runs, func(w io.Writer) {
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%-6d %s %s (override=%s)\n", r.Seq, r.RunID, r.Scene, r.Override)
			}
		})
	}
}

func runEntry(r store.ScanRecord) RunEntry {
	return RunEntry{
		RunID:       r.RunID,
		Seq:         r.Seq,
		Scene:       r.Scene,
		SceneDigest: r.SceneDigest,
		Override:    r.Override,
		ToolVersion: r.ToolVersion,
	}
}

func locationEntry(l store.LocationRecord) LocationEntry {
	e := LocationEntry{
		Location:     l.Location,
		Instanceable: l.Instanceable,
		Group:        l.Group,
		PrototypeID:  l.PrototypeID,
		Arcs:         l.ArcCount,
		Selections:   l.SelectionCount,
		Key:          l.Dump,
	}
	if l.Instanceable {
		e.Digest = l.KeyDigest
	}
	return e
}

func outputRunDetailText(w io.Writer, d RunDetail, verbose bool) {
	fmt.Fprintf(w, "Run %s (seq %d): scene %s, override=%s\n", d.Run.RunID, d.Run.Seq, d.Run.Scene, d.Run.Override)
	for _, l := range d.Locations {
		if !l.Instanceable {
			fmt.Fprintf(w, "  %s: not instanceable\n", l.Location)
			continue
		}
		fmt.Fprintf(w, "  %s: %s group=%d prototype=%s arcs=%d selections=%d\n",
			l.Location, shortDigest(l.Digest), l.Group, l.PrototypeID, l.Arcs, l.Selections)
		if verbose {
			writeIndented(w, "key", l.Key)
		}
	}
}
