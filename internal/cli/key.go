package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/instkey/internal/compiler"
	"github.com/roach88/instkey/internal/instancing"
	"github.com/roach88/instkey/internal/ir"
)

// KeyOptions holds flags for the key command.
type KeyOptions struct {
	*RootOptions
	Scene    string // scene name, required when the file holds several
	Location string // only this location
	Output   string // output file path for canonical JSON
}

// LocationKey is the key of one location.
type LocationKey struct {
	Location          string                `json:"location"`
	Instanceable      bool                  `json:"instanceable"`
	Digest            string                `json:"digest"`
	Hash              string                `json:"hash"`
	Arcs              []ir.Arc              `json:"arcs"`
	VariantSelections []ir.VariantSelection `json:"variant_selections"`
	Dump              string                `json:"-"`
}

// KeyResult holds the keys of one scene.
type KeyResult struct {
	Scene     string        `json:"scene"`
	Override  string        `json:"override"`
	Locations []LocationKey `json:"locations"`
}

// NewKeyCommand creates the key command.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "key <scene-file>",
		Short: "Print the instance keys of a scene",
		Long: `Compute the instance key of every location in a scene fixture.

Text output shows each key's recorded arcs and variant selections; json
adds digests and hashes. With --output the keys are also written as
canonical JSON, suitable for diffing.

Examples:
  instkey key ./scenes/kitchen.yaml
  instkey key ./scenes/props.cue --scene warehouse --location /Warehouse/Crate_1
  instkey key ./scenes/kitchen.yaml --override-instanceable off --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKey(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scene, "scene", "", "scene name (required if the file holds several)")
	cmd.Flags().StringVar(&opts.Location, "location", "", "only this location")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write canonical JSON keys to this file")

	return cmd
}

func runKey(opts *KeyOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	scene, err := loadOneScene(path, opts.Scene)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		}
		return WrapExitError(ExitCommandError, "failed to load scene", err)
	}

	locations := scene.Locations
	if opts.Location != "" {
		loc, ok := scene.Location(opts.Location)
		if !ok {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no location %q in scene %s", opts.Location, scene.Name), scene.Names())
			return NewExitError(ExitCommandError, fmt.Sprintf("location not found: %s", opts.Location))
		}
		locations = []compiler.Location{loc}
	}

	logger := opts.newLogger(cmd.ErrOrStderr())
	result := KeyResult{
		Scene:     scene.Name,
		Override:  opts.Config.Override.String(),
		Locations: make([]LocationKey, 0, len(locations)),
	}
	for _, loc := range locations {
		formatter.VerboseLog("Keying location: %s", loc.Name)
		key := instancing.NewBuilder(loc.Graph, loc.Graph,
			instancing.WithConfig(opts.Config),
			instancing.WithLogger(logger)).Build(loc.Graph)
		result.Locations = append(result.Locations, locationKey(loc.Name, key))
	}

	if opts.Output != "" {
		if err := writeKeysToFile(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	return formatter.Emit(result, func(w io.Writer) { outputKeyText(w, result) })
}

func locationKey(name string, key instancing.Key) LocationKey {
	lk := LocationKey{
		Location:          name,
		Instanceable:      !key.IsEmpty(),
		Digest:            key.Digest(),
		Hash:              strconv.FormatUint(key.Hash(), 16),
		Arcs:              key.Arcs(),
		VariantSelections: key.VariantSelections(),
		Dump:              key.String(),
	}
	if lk.Arcs == nil {
		lk.Arcs = []ir.Arc{}
	}
	if lk.VariantSelections == nil {
		lk.VariantSelections = []ir.VariantSelection{}
	}
	return lk
}

func outputKeyText(w io.Writer, result KeyResult) {
	fmt.Fprintf(w, "Scene: %s (override=%s)\n", result.Scene, result.Override)
	for _, lk := range result.Locations {
		fmt.Fprintln(w)
		if !lk.Instanceable {
			fmt.Fprintf(w, "%s: not instanceable\n", lk.Location)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", lk.Location, shortDigest(lk.Digest))
		for _, line := range strings.Split(strings.TrimRight(lk.Dump, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

// writeKeysToFile writes the keys as canonical JSON.
func writeKeysToFile(result KeyResult, path string) error {
	locs := make(ir.IRArray, 0, len(result.Locations))
	for _, lk := range result.Locations {
		locs = append(locs, ir.IRObject{
			"location":     ir.IRString(lk.Location),
			"instanceable": ir.IRBool(lk.Instanceable),
			"digest":       ir.IRString(lk.Digest),
			"key":          ir.CanonicalKey(lk.Arcs, lk.VariantSelections),
		})
	}
	data, err := ir.MarshalCanonical(ir.IRObject{
		"scene":     ir.IRString(result.Scene),
		"override":  ir.IRString(result.Override),
		"locations": locs,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// loadOneScene loads and builds one scene of a fixture file.
func loadOneScene(path, name string) (*compiler.Scene, error) {
	f, err := compiler.LoadSceneFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scene file not found: %s", path)}
		}
		return nil, convertCompileError(err, "scene", path)
	}

	var doc *compiler.SceneDoc
	switch {
	case name != "":
		for _, d := range f.Scenes {
			if d.Name == name {
				doc = d
			}
		}
		if doc == nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("no scene named %q", name), Source: path}
		}
	case len(f.Scenes) == 1:
		doc = f.Scenes[0]
	default:
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%d scenes found; use --scene", len(f.Scenes)), Source: path}
	}

	scene, err := compiler.Build(doc)
	if err != nil {
		return nil, &LoadError{Code: firstValidationCode(err), Message: err.Error(), Source: path}
	}
	return scene, nil
}

func shortDigest(d string) string {
	if len(d) > 16 {
		return d[:16]
	}
	return d
}

// firstValidationCode returns the code of the first validation problem in
// err, or ErrCodeGeneric.
func firstValidationCode(err error) string {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Code
	}
	return ErrCodeGeneric
}
