package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("store: not found")

const scanColumns = `run_id, seq, scene, scene_digest, override, tool_version, ir_version`

// ReadScan returns the run with the given id.
func (s *Store) ReadScan(ctx context.Context, runID string) (ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scanColumns+`
		FROM scans
		WHERE run_id = ?
	`, runID)
	rec, err := scanScanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ScanRecord{}, fmt.Errorf("read scan %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return ScanRecord{}, fmt.Errorf("read scan %s: %w", runID, err)
	}
	return rec, nil
}

// LatestScan returns the run of scene with the highest seq, excluding
// excludeRunID (pass "" to exclude nothing). ok is false when there is none.
func (s *Store) LatestScan(ctx context.Context, scene, excludeRunID string) (rec ScanRecord, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scanColumns+`
		FROM scans
		WHERE scene = ? AND run_id != ?
		ORDER BY seq DESC, run_id COLLATE BINARY DESC
		LIMIT 1
	`, scene, excludeRunID)
	rec, err = scanScanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ScanRecord{}, false, nil
	}
	if err != nil {
		return ScanRecord{}, false, fmt.Errorf("latest scan %s: %w", scene, err)
	}
	return rec, true, nil
}

// ListScans returns every run of scene ordered by seq.
// An empty scene lists every run.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListScans(ctx context.Context, scene string) ([]ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scanColumns+`
		FROM scans
		WHERE ? = '' OR scene = ?
		ORDER BY seq ASC, run_id COLLATE BINARY ASC
	`, scene, scene)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	recs := []ScanRecord{}
	for rows.Next() {
		rec, err := scanScanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return recs, nil
}

// MaxSeq returns the highest stored seq, or 0 for an empty catalog. A
// scan clock resumed at this value keeps seq increasing across processes.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM scans`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

// ReadLocations returns the locations of a run.
// Results are ordered deterministically: ORDER BY location COLLATE BINARY.
//
// Returns an empty slice (not nil) if the run has no locations.
func (s *Store) ReadLocations(ctx context.Context, runID string) ([]LocationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT location, instanceable, key_digest, key_json, arc_count, selection_count, group_index, prototype_id, dump
		FROM location_keys
		WHERE run_id = ?
		ORDER BY location COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	recs := []LocationRecord{}
	for rows.Next() {
		var rec LocationRecord
		var instanceable int
		if err := rows.Scan(
			&rec.Location,
			&instanceable,
			&rec.KeyDigest,
			&rec.KeyJSON,
			&rec.ArcCount,
			&rec.SelectionCount,
			&rec.Group,
			&rec.PrototypeID,
			&rec.Dump,
		); err != nil {
			return nil, fmt.Errorf("scan location row: %w", err)
		}
		rec.Instanceable = instanceable != 0
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return recs, nil
}

// KeyUse is one stored location carrying a given key.
type KeyUse struct {
	RunID    string
	Seq      int64
	Location string
}

// LocationsWithKey returns every stored location whose key digest is
// digest, oldest run first.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) LocationsWithKey(ctx context.Context, digest string) ([]KeyUse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.run_id, s.seq, l.location
		FROM location_keys l
		JOIN scans s ON s.run_id = l.run_id
		WHERE l.key_digest = ?
		ORDER BY s.seq ASC, l.location COLLATE BINARY ASC
	`, digest)
	if err != nil {
		return nil, fmt.Errorf("query key %s: %w", digest, err)
	}
	defer rows.Close()

	out := []KeyUse{}
	for rows.Next() {
		var u KeyUse
		if err := rows.Scan(&u.RunID, &u.Seq, &u.Location); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key rows: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScanRecord(r rowScanner) (ScanRecord, error) {
	var rec ScanRecord
	err := r.Scan(
		&rec.RunID,
		&rec.Seq,
		&rec.Scene,
		&rec.SceneDigest,
		&rec.Override,
		&rec.ToolVersion,
		&rec.IRVersion,
	)
	return rec, err
}
