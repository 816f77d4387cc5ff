package storage

import (
	"fmt"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
)

// SearchElements performs FTS5 full-text search over element labels and
// types, scoped to one project. Matches are joined back to the live element
// rows, so deleted elements never surface.
func (s *Store) SearchElements(projectID, query string) ([]models.Element, error) {
	rows, err := s.db.Query(
		`SELECT e.id, e.project_id, e.element_type, e.data, e.label_text, e.created_at, e.updated_at, e.version, e.is_deleted
		 FROM elements_fts f
		 JOIN elements e ON e.id = f.element_id AND e.project_id = f.project_id
		 WHERE elements_fts MATCH ? AND f.project_id = ? AND e.is_deleted = 0`,
		query, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("search elements: %w", err)
	}
	defer rows.Close()

	var elements []models.Element
	for rows.Next() {
		el, err := scanElement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan element: %w", err)
		}
		elements = append(elements, *el)
	}
	return elements, rows.Err()
}
