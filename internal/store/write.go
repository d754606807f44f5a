package store

import (
	"context"
	"fmt"

	"github.com/roach88/instkey/internal/ir"
	"github.com/roach88/instkey/internal/scan"
)

// ScanRecord is one stored run.
type ScanRecord struct {
	RunID       string
	Seq         int64
	Scene       string
	SceneDigest string
	Override    string
	ToolVersion string
	IRVersion   string
}

// LocationRecord is one location of a stored run.
type LocationRecord struct {
	Location       string
	Instanceable   bool
	KeyDigest      string
	KeyJSON        string
	ArcCount       int
	SelectionCount int
	Group          int
	PrototypeID    string
	Dump           string
}

// WriteScan stores res as one run. sceneDigest identifies the fixture the
// scene was compiled from (ir.SceneDigest).
//
// The run and its locations are written in one transaction. Writing the
// same run id twice is a no-op (ON CONFLICT DO NOTHING).
func (s *Store) WriteScan(ctx context.Context, res *scan.Result, sceneDigest string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write scan: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans
		(run_id, seq, scene, scene_digest, override, tool_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		res.RunID,
		res.Seq,
		res.Scene,
		sceneDigest,
		res.Override.String(),
		ir.ToolVersion,
		ir.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO location_keys
		(run_id, location, instanceable, key_digest, key_json, arc_count, selection_count, group_index, prototype_id, dump)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, location) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write scan: prepare: %w", err)
	}
	defer stmt.Close()

	for _, lr := range res.Locations {
		keyJSON, err := marshalKey(lr.Key)
		if err != nil {
			return fmt.Errorf("write scan: %s: %w", lr.Location, err)
		}
		_, err = stmt.ExecContext(ctx,
			res.RunID,
			lr.Location,
			boolToInt(lr.Instanceable()),
			lr.Key.Digest(),
			keyJSON,
			len(lr.Key.Arcs()),
			len(lr.Key.VariantSelections()),
			lr.Group,
			lr.PrototypeID,
			lr.Key.String(),
		)
		if err != nil {
			return fmt.Errorf("write scan: %s: %w", lr.Location, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write scan: commit: %w", err)
	}
	return nil
}
