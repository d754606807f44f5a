package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/instkey/internal/instancing"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Override string // "" | "default" | "off" | "on"

	// Config is resolved once in PersistentPreRunE from Override or, when
	// the flag is unset, from the environment.
	Config instancing.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the instkey CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "instkey",
		Short: "instkey - instance keys for composition graphs",
		Long: `Compute instance keys for composed scene locations.

Locations whose keys are equal compose to identical content and can share
one prototype. Scans are recorded in a SQLite catalog so that later scans
can be replayed against them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.resolveConfig()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Override, "override-instanceable", "",
		"instancing override (default|off|on); falls back to $"+instancing.EnvOverride)

	// Add subcommands
	cmd.AddCommand(NewKeyCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// resolveConfig reads the override from the flag, or from the environment
// when the flag is empty.
func (o *RootOptions) resolveConfig() error {
	var (
		override instancing.Override
		err      error
	)
	if o.Override != "" {
		override, err = instancing.ParseOverride(o.Override)
	} else {
		override, err = instancing.OverrideFromEnv()
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid instancing override", err)
	}
	o.Config = instancing.Config{Override: override}
	return nil
}

// newLogger builds the command logger: text on w, Debug when verbose.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
