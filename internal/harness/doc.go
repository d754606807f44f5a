// Package harness runs instancing conformance scenarios.
//
// A scenario names a scene fixture, an optional instancing override, and a
// list of assertions about the resulting keys: which locations are
// instanceable, which share a key, the exact arcs and variant selections
// recorded, how many instance groups form.
//
// Every run is deterministic. Run and prototype ids come from sequential
// generators, the scan is written to an in-memory catalog, and the scene is
// scanned a second time and replayed against the first so that key
// stability is checked on every scenario.
//
// RunWithGolden additionally compares the per-location debug dumps against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
