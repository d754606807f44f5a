package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/roach88/instkey/internal/compiler"
	"github.com/roach88/instkey/internal/instancing"
	"github.com/roach88/instkey/internal/ir"
	"github.com/roach88/instkey/internal/prototype"
	"github.com/roach88/instkey/internal/scan"
	"github.com/roach88/instkey/internal/store"
	"github.com/roach88/instkey/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with sequential ids and a fresh clock.
type Harness struct {
	store   *store.Store
	scanner *scan.Scanner
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load and build the scene
// 2. Scan it and write the scan to the catalog
// 3. Scan it again and replay the rescan against the stored run
// 4. Evaluate assertions against the stored run
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	scene, digest, err := loadScene(scenario)
	if err != nil {
		return nil, err
	}

	override, err := instancing.ParseOverride(scenario.Override)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		store: st,
		scanner: scan.New(
			scan.WithConfig(instancing.Config{Override: override}),
			scan.WithRunIDs(testutil.NewSequentialIDs("run")),
			scan.WithClock(scan.NewClockAt(0)),
			scan.WithLogger(logger),
			scan.WithRegistry(prototype.NewRegistry[string](
				prototype.WithLogger(logger),
				prototype.WithIDGenerator(testutil.NewSequentialIDs("proto")),
			)),
		),
		logger: logger,
	}

	result := NewResult()
	if err := h.scanAndReplay(ctx, scene, digest, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
		RunID: result.Scan.RunID,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) scanAndReplay(ctx context.Context, scene *compiler.Scene, digest string, result *Result) error {
	first, err := h.scanner.Scan(ctx, scene)
	if err != nil {
		return fmt.Errorf("failed to scan: %w", err)
	}
	if err := h.store.WriteScan(ctx, first, digest); err != nil {
		return err
	}
	result.Scan = first

	locations, err := h.store.ReadLocations(ctx, first.RunID)
	if err != nil {
		return err
	}
	result.Locations = locations

	second, err := h.scanner.Scan(ctx, scene)
	if err != nil {
		return fmt.Errorf("failed to rescan: %w", err)
	}
	report, err := h.store.Replay(ctx, second, digest)
	if err != nil {
		return err
	}
	result.Replay = report
	for _, c := range report.Changes {
		result.AddError(fmt.Sprintf("replay: %s %s", c.Location, c.Kind))
	}
	for i, lr := range second.Locations {
		if lr.PrototypeID != first.Locations[i].PrototypeID {
			result.AddError(fmt.Sprintf("replay: %s prototype %q became %q",
				lr.Location, first.Locations[i].PrototypeID, lr.PrototypeID))
		}
	}

	h.logger.Debug("scenario scanned",
		"scene", scene.Name,
		"run", first.RunID,
		"changes", len(report.Changes))
	return nil
}

// loadScene resolves the scenario's scene and the digest identifying it.
func loadScene(s *Scenario) (*compiler.Scene, string, error) {
	if s.Fixture != nil {
		data, err := yaml.Marshal(s.Fixture)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode fixture: %w", err)
		}
		scene, err := compiler.Build(s.Fixture)
		if err != nil {
			return nil, "", fmt.Errorf("fixture: %w", err)
		}
		return scene, ir.SceneDigest(data), nil
	}

	file, err := compiler.LoadSceneFile(s.Scene)
	if err != nil {
		return nil, "", err
	}
	doc, err := pickScene(file, s.SceneName)
	if err != nil {
		return nil, "", err
	}
	scene, err := compiler.Build(doc)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", file.Path, err)
	}
	return scene, file.Digest, nil
}

func pickScene(file *compiler.SceneFile, name string) (*compiler.SceneDoc, error) {
	if name == "" {
		if len(file.Scenes) != 1 {
			return nil, fmt.Errorf("%s holds %d scenes; set scene_name", file.Path, len(file.Scenes))
		}
		return file.Scenes[0], nil
	}
	for _, doc := range file.Scenes {
		if doc.Name == name {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("%s: no scene named %q", file.Path, name)
}
