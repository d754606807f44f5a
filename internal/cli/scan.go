package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/instkey/internal/idgen"
	"github.com/roach88/instkey/internal/prototype"
	"github.com/roach88/instkey/internal/scan"
	"github.com/roach88/instkey/internal/store"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Database    string
	Scene       string // optional - one scene only
	Workers     int
	MetricsFile string

	// RunIDs and PrototypeIDs override the id generators (for testing).
	// If nil, default to idgen.UUIDv7.
	RunIDs       idgen.Generator
	PrototypeIDs idgen.Generator
}

// GroupSummary is one instance group of a scan.
type GroupSummary struct {
	PrototypeID string   `json:"prototype_id"`
	Digest      string   `json:"digest"`
	Locations   []string `json:"locations"`
}

// ScanSummary is one recorded scan.
type ScanSummary struct {
	RunID        string         `json:"run_id"`
	Seq          int64          `json:"seq"`
	Scene        string         `json:"scene"`
	Override     string         `json:"override"`
	Locations    int            `json:"locations"`
	Instanceable int            `json:"instanceable"`
	Groups       []GroupSummary `json:"groups"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <scene-dir>",
		Short: "Scan scenes and record their keys",
		Long: `Compute the instance key of every location of every scene under a
directory, group locations that can share a prototype, and record each scan
in the SQLite catalog (created if it doesn't exist).

Recorded scans are the baselines for "instkey replay".

Examples:
  instkey scan ./scenes --db ./instkey.db
  instkey scan ./scenes --db ./instkey.db --scene kitchen --workers 4
  instkey scan ./scenes --db ./instkey.db --metrics-file ./instkey.prom`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Scene, "scene", "", "scan this scene only")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "locations keyed concurrently (default GOMAXPROCS)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write prototype registry metrics in Prometheus text format")

	return cmd
}

func runScan(opts *ScanOptions, sceneDir string, cmd *cobra.Command) error {
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
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	reg := prometheus.NewRegistry()
	scanner, err := opts.newScanner(ctx, st, reg, logger)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read catalog", err)
	}

	summaries := make([]ScanSummary, 0, len(scenes))
	for _, s := range scenes {
		formatter.VerboseLog("Scanning scene: %s (%s)", s.Doc.Name, s.Source)
		res, err := scanner.Scan(ctx, s.Scene)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "scan failed", err)
		}
		if err := st.WriteScan(ctx, res, s.Digest); err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record scan", err)
		}
		summaries = append(summaries, summarize(res))
	}

	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing metrics file: %v", err), nil)
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
		formatter.VerboseLog("Wrote metrics to %s", opts.MetricsFile)
	}

	return formatter.Emit(summaries, func(w io.Writer) { outputScanText(w, summaries, opts.Verbose) })
}

// newScanner builds a scanner whose clock resumes after the catalog's
// highest sequence number.
func (o *ScanOptions) newScanner(ctx context.Context, st *store.Store, reg prometheus.Registerer, logger *slog.Logger) (*scan.Scanner, error) {
	maxSeq, err := st.MaxSeq(ctx)
	if err != nil {
		return nil, err
	}

	regOpts := []prototype.Option{
		prototype.WithLogger(logger),
		prototype.WithRegisterer(reg),
	}
	if o.PrototypeIDs != nil {
		regOpts = append(regOpts, prototype.WithIDGenerator(o.PrototypeIDs))
	}

	scanOpts := []scan.Option{
		scan.WithConfig(o.Config),
		scan.WithClock(scan.NewClockAt(maxSeq)),
		scan.WithRegistry(prototype.NewRegistry[string](regOpts...)),
		scan.WithLogger(logger),
	}
	if o.Workers > 0 {
		scanOpts = append(scanOpts, scan.WithWorkers(o.Workers))
	}
	if o.RunIDs != nil {
		scanOpts = append(scanOpts, scan.WithRunIDs(o.RunIDs))
	}
	return scan.New(scanOpts...), nil
}

// selectScenes loads sceneDir and returns the built scenes, or only the
// one named. Load problems are reported through formatter.
func selectScenes(formatter *OutputFormatter, sceneDir, name string) ([]LoadedScene, error) {
	loadResult, loadErrors := LoadScenes(sceneDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		code, msg := ErrCodeGeneric, loadErrors[0].Error()
		if le, ok := loadErrors[0].(*LoadError); ok {
			code = le.Code
		}
		_ = formatter.Error(code, msg, nil)
		return nil, WrapExitError(ExitCommandError, "failed to load scenes", loadErrors[0])
	}
	formatter.VerboseLog("Found %d scene file(s) in %s", loadResult.FileCount, sceneDir)

	if name == "" {
		return loadResult.Built(), nil
	}
	s, ok := loadResult.Scene(name)
	if !ok {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no scene named %q in %s", name, sceneDir), nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("scene not found: %s", name))
	}
	return []LoadedScene{s}, nil
}

// signalContext cancels on SIGINT/SIGTERM. Uses the command's context if
// available (for testing).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func summarize(res *scan.Result) ScanSummary {
	s := ScanSummary{
		RunID:        res.RunID,
		Seq:          res.Seq,
		Scene:        res.Scene,
		Override:     res.Override.String(),
		Locations:    len(res.Locations),
		Instanceable: res.Instanceable(),
		Groups:       make([]GroupSummary, 0, len(res.Groups)),
	}
	for _, g := range res.Groups {
		s.Groups = append(s.Groups, GroupSummary{
			PrototypeID: g.PrototypeID,
			Digest:      g.Key.Digest(),
			Locations:   g.Locations,
		})
	}
	return s
}

func outputScanText(w io.Writer, summaries []ScanSummary, verbose bool) {
	for _, s := range summaries {
		fmt.Fprintf(w, "✓ %s run %s (seq %d): %d location(s), %d instanceable, %d group(s)\n",
			s.Scene, s.RunID, s.Seq, s.Locations, s.Instanceable, len(s.Groups))
		for i, g := range s.Groups {
			fmt.Fprintf(w, "  group %d %s %s: %d location(s)\n", i, g.PrototypeID, shortDigest(g.Digest), len(g.Locations))
			if verbose {
				for _, loc := range g.Locations {
					fmt.Fprintf(w, "    %s\n", loc)
				}
			}
		}
	}
	fmt.Fprintf(w, "Recorded %d scan(s)\n", len(summaries))
}
