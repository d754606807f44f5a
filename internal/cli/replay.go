package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/instkey/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*ScanOptions
	Record bool // record the fresh scans after comparing
}

// ReplaySceneResult holds the replay result for a single scene.
type ReplaySceneResult struct {
	Scene      string             `json:"scene"`
	RunID      string             `json:"run_id"`
	NoBaseline bool               `json:"no_baseline,omitempty"`
	Report     store.ReplayReport `json:"report"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Scenes      []ReplaySceneResult `json:"scenes"`
	TotalScenes int                 `json:"total_scenes"`
	AllStable   bool                `json:"all_stable"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{ScanOptions: &ScanOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "replay <scene-dir>",
		Short: "Rescan scenes and compare keys with the catalog",
		Long: `Recompute every location's key and compare it with the most recent
recorded scan of the same scene.

A location whose key digest changed, appeared or disappeared is reported.
Scenes with no recorded scan are listed and skipped.

Exit codes:
  0 - All keys are unchanged
  1 - One or more keys changed
  2 - Command error (database not found, etc.)

Examples:
  instkey replay ./scenes --db ./instkey.db
  instkey replay ./scenes --db ./instkey.db --scene kitchen --format json
  instkey replay ./scenes --db ./instkey.db --record`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Scene, "scene", "", "replay this scene only")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "record the fresh scans after comparing")

	return cmd
}

func runReplay(opts *ReplayOptions, sceneDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())

	ctx, stop := signalContext(cmd)
	defer stop()

	scenes, err := selectScenes(formatter, sceneDir, opts.Scene)
	if err != nil {
		return err
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	scanner, err := opts.newScanner(ctx, st, prometheus.NewRegistry(), logger)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read catalog", err)
	}

	result := ReplayResult{
		Scenes:      make([]ReplaySceneResult, 0, len(scenes)),
		TotalScenes: len(scenes),
		AllStable:   true,
	}
	for _, s := range scenes {
		res, err := scanner.Scan(ctx, s.Scene)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to scan %s", s.Doc.Name), err)
		}

		sr := ReplaySceneResult{Scene: res.Scene, RunID: res.RunID}
		report, err := st.Replay(ctx, res, s.Digest)
		switch {
		case errors.Is(err, store.ErrNoBaseline):
			sr.NoBaseline = true
			formatter.VerboseLog("No recorded scan of %s", res.Scene)
		case err != nil:
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay %s", res.Scene), err)
		default:
			sr.Report = report
			if !report.Clean() {
				result.AllStable = false
			}
		}

		if opts.Record {
			if err := st.WriteScan(ctx, res, s.Digest); err != nil {
				return WrapExitError(ExitCommandError, "failed to record scan", err)
			}
		}
		result.Scenes = append(result.Scenes, sr)
	}

	// Output results
	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}

	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllStable {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeKeyChanged,
			Message: "instance keys changed",
		}
	}

	if err := encodeIndented(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if !result.AllStable {
		// Changed keys = exit code 1
		return NewExitError(ExitFailure, "instance keys changed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d scene(s)\n", result.TotalScenes)
	fmt.Fprintln(w)

	for _, sr := range result.Scenes {
		if sr.NoBaseline {
			fmt.Fprintf(w, "- Scene: %s (no recorded scan)\n\n", sr.Scene)
			continue
		}

		status := "✓"
		if !sr.Report.Clean() {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Scene: %s\n", status, sr.Scene)
		fmt.Fprintf(w, "  Baseline: %s (seq %d)\n", sr.Report.BaselineRunID, sr.Report.BaselineSeq)
		if sr.Report.SceneEdited {
			fmt.Fprintln(w, "  Scene fixture edited since baseline")
		}
		if sr.Report.OverrideChanged {
			fmt.Fprintf(w, "  Instanceable override changed since baseline (was %s)\n", sr.Report.BaselineOverride)
		}
		fmt.Fprintf(w, "  Unchanged: %d, changed: %d\n", sr.Report.Unchanged, len(sr.Report.Changes))

		for _, c := range sr.Report.Changes {
			fmt.Fprintf(w, "  %s %s\n", c.Kind, c.Location)
			if verbose && c.Kind == store.ChangeKeyChanged {
				writeIndented(w, "was", c.OldDump)
				writeIndented(w, "now", c.NewDump)
			}
		}
		fmt.Fprintln(w)
	}

	if result.AllStable {
		fmt.Fprintln(w, "✓ All keys unchanged")
		return nil
	}

	fmt.Fprintln(w, "✗ Instance keys changed")
	// Changed keys = exit code 1
	return NewExitError(ExitFailure, "instance keys changed")
}

func writeIndented(w io.Writer, label, dump string) {
	fmt.Fprintf(w, "    %s:\n", label)
	for _, line := range strings.Split(strings.TrimRight(dump, "\n"), "\n") {
		fmt.Fprintf(w, "      %s\n", line)
	}
}
