package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
)

// SaveSnapshot stores a named copy of an element set. Saving an existing
// name overwrites it.
func (s *Store) SaveSnapshot(projectID, name string, elements []json.RawMessage) (*models.Snapshot, error) {
	if name == "" {
		return nil, fmt.Errorf("snapshot name is required")
	}
	if elements == nil {
		elements = []json.RawMessage{}
	}
	data, err := json.Marshal(elements)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO snapshots (project_id, name, elements) VALUES (?, ?, ?)
		 ON CONFLICT(project_id, name) DO UPDATE SET elements = excluded.elements, created_at = datetime('now')`,
		projectID, name, string(data),
	)
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return s.GetSnapshot(projectID, name)
}

// GetSnapshot loads a snapshot by name.
func (s *Store) GetSnapshot(projectID, name string) (*models.Snapshot, error) {
	var snap models.Snapshot
	var data string
	err := s.db.QueryRow(
		`SELECT project_id, name, elements, created_at FROM snapshots WHERE project_id = ? AND name = ?`,
		projectID, name,
	).Scan(&snap.ProjectID, &snap.Name, &data, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &snap.Elements); err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", name, err)
	}
	return &snap, nil
}

// ListSnapshots returns snapshot names with element counts, newest first.
func (s *Store) ListSnapshots(projectID string) ([]models.SnapshotInfo, error) {
	rows, err := s.db.Query(
		`SELECT name, elements, created_at FROM snapshots WHERE project_id = ? ORDER BY created_at DESC, name`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []models.SnapshotInfo
	for rows.Next() {
		var info models.SnapshotInfo
		var data string
		if err := rows.Scan(&info.Name, &data, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var elements []json.RawMessage
		if err := json.Unmarshal([]byte(data), &elements); err == nil {
			info.ElementCount = len(elements)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
