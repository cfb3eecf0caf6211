package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

// RecordLayer records a layer produced by a run. Recording the same layer
// twice keeps the first record.
func (s *SQLiteStore) RecordLayer(runID string, l *core.Layer) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`INSERT INTO layers (id, run_id, name, kind, geometry_type, crs, feature_count, location, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		l.ID, runID, l.Name, string(l.Kind), string(l.GeometryType), l.CRS, l.FeatureCount, l.Location, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record layer: %w", err)
	}
	return nil
}

// MarkLayerReleased stamps the release time of a layer. Unknown layers are ignored.
func (s *SQLiteStore) MarkLayerReleased(layerID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if _, err := s.db.Exec(
		`UPDATE layers SET released_at = ? WHERE id = ? AND released_at IS NULL`,
		time.Now().UTC(), layerID,
	); err != nil {
		return fmt.Errorf("failed to mark layer released: %w", err)
	}
	return nil
}

// ListLayers returns the layers recorded for a run, oldest first.
func (s *SQLiteStore) ListLayers(runID string) ([]*core.PersistedLayer, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, name, kind, geometry_type, crs, feature_count, location, created_at, released_at
		 FROM layers WHERE run_id = ? ORDER BY created_at, rowid`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list layers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.PersistedLayer
	for rows.Next() {
		var (
			l          core.PersistedLayer
			kind, geom string
			releasedAt sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.RunID, &l.Name, &kind, &geom, &l.CRS, &l.FeatureCount,
			&l.Location, &l.CreatedAt, &releasedAt); err != nil {
			return nil, fmt.Errorf("failed to scan layer: %w", err)
		}
		l.Kind = core.LayerKind(kind)
		l.GeometryType = core.GeometryType(geom)
		l.ReleasedAt = timePtr(releasedAt)
		out = append(out, &l)
	}
	return out, rows.Err()
}
