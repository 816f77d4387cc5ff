package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
)

// Store manages canvas.db: tenants, projects, elements, the version trail
// and snapshots. All element operations are scoped by an explicit project id;
// the store itself holds no notion of an "active" project.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Open opens (or creates) canvas.db under dataDir, runs migrations and
// guarantees the default tenant and its default project exist.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "canvas.db")
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open canvas db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping canvas db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate canvas db: %w", err)
	}

	s := &Store{db: db, dataDir: dataDir}

	// The default tenant (and its default project) must always resolve.
	tenant, err := s.EnsureTenant(DefaultWorkspace, "default")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure default tenant: %w", err)
	}
	if _, err := s.DefaultProject(tenant.ID); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure default project: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataDir returns the base data directory.
func (s *Store) DataDir() string {
	return s.dataDir
}

// GetElement returns a non-deleted element by id.
func (s *Store) GetElement(projectID, id string) (*models.Element, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, element_type, data, label_text, created_at, updated_at, version, is_deleted
		 FROM elements WHERE id = ? AND project_id = ? AND is_deleted = 0`,
		id, projectID,
	)
	el, err := scanElement(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("element %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get element: %w", err)
	}
	return el, nil
}

// SetElement upserts an element. A brand-new id or a previously deleted one
// starts at version 1 (operation "create"); an existing live element gets
// version+1 (operation "update"). The element row, its version row and the
// full-text index entry are written in a single transaction.
func (s *Store) SetElement(projectID, id string, payload map[string]any) (*models.Element, string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	el, op, err := setElementTx(tx, projectID, id, payload)
	if err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit: %w", err)
	}
	return el, op, nil
}

// DeleteElement soft-deletes an element. Returns false if the element does
// not exist or is already deleted. The version row appended carries the
// pre-deletion payload so the trail stays complete.
func (s *Store) DeleteElement(projectID, id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	deleted, err := deleteElementTx(tx, projectID, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ListElements returns all non-deleted elements in the project, oldest first.
func (s *Store) ListElements(projectID string) ([]models.Element, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, element_type, data, label_text, created_at, updated_at, version, is_deleted
		 FROM elements WHERE project_id = ? AND is_deleted = 0 ORDER BY created_at, id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list elements: %w", err)
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

// CountElements returns the number of non-deleted elements in the project.
func (s *Store) CountElements(projectID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM elements WHERE project_id = ? AND is_deleted = 0`, projectID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count elements: %w", err)
	}
	return n, nil
}

// ClearElements soft-deletes every live element in the project, appending one
// "delete" version row each, all in one transaction. Returns the count.
func (s *Store) ClearElements(projectID string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	n, err := clearElementsTx(tx, projectID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// QueryElements filters the live element set by exact-match type and
// top-level payload field equality. This is a scan over ListElements, which
// is fine at diagram scale.
func (s *Store) QueryElements(projectID, elementType string, filters map[string]any) ([]models.Element, error) {
	elements, err := s.ListElements(projectID)
	if err != nil {
		return nil, err
	}

	var matched []models.Element
	for _, el := range elements {
		if elementType != "" && el.Type != elementType {
			continue
		}
		if len(filters) > 0 {
			var payload map[string]any
			if err := json.Unmarshal(el.Data, &payload); err != nil {
				continue
			}
			ok := true
			for k, want := range filters {
				if got, present := payload[k]; !present || !reflect.DeepEqual(got, want) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, el)
	}
	return matched, nil
}

// ReplaceElements atomically overwrites the project's element set: every live
// element is soft-deleted, then each payload is stored as a fresh create.
// Any failure rolls the whole batch back.
func (s *Store) ReplaceElements(projectID string, payloads []map[string]any) ([]models.Element, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := clearElementsTx(tx, projectID); err != nil {
		return nil, err
	}

	var stored []models.Element
	for _, payload := range payloads {
		id, _ := payload["id"].(string)
		if id == "" {
			id = uuid.New().String()
		}
		el, _, err := setElementTx(tx, projectID, id, payload)
		if err != nil {
			return nil, err
		}
		stored = append(stored, *el)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// ElementHistory returns the version trail for one element, newest first.
func (s *Store) ElementHistory(projectID, id string, limit int) ([]models.ElementVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryVersions(
		`SELECT seq, element_id, project_id, version, data, operation, created_at
		 FROM element_versions WHERE project_id = ? AND element_id = ? ORDER BY seq DESC LIMIT ?`,
		projectID, id, limit,
	)
}

// ProjectHistory returns the version trail across the whole project, newest first.
func (s *Store) ProjectHistory(projectID string, limit int) ([]models.ElementVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryVersions(
		`SELECT seq, element_id, project_id, version, data, operation, created_at
		 FROM element_versions WHERE project_id = ? ORDER BY seq DESC LIMIT ?`,
		projectID, limit,
	)
}

func (s *Store) queryVersions(query string, args ...any) ([]models.ElementVersion, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var versions []models.ElementVersion
	for rows.Next() {
		var v models.ElementVersion
		var data string
		if err := rows.Scan(&v.Seq, &v.ElementID, &v.ProjectID, &v.Version, &data, &v.Operation, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.Data = json.RawMessage(data)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- transaction bodies, shared by the single-op and batch paths ---

func setElementTx(tx *sql.Tx, projectID, id string, payload map[string]any) (*models.Element, string, error) {
	elementType, _ := payload["type"].(string)
	if elementType == "" {
		return nil, "", fmt.Errorf("element %q: payload is missing a type", id)
	}
	payload["id"] = id

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal element %q: %w", id, err)
	}
	label := extractLabel(payload)

	var prevVersion int64
	var prevDeleted bool
	err = tx.QueryRow(
		`SELECT version, is_deleted FROM elements WHERE id = ? AND project_id = ?`,
		id, projectID,
	).Scan(&prevVersion, &prevDeleted)

	var version int64
	var op string
	switch {
	case err == sql.ErrNoRows:
		version, op = 1, models.OpCreate
		_, err = tx.Exec(
			`INSERT INTO elements (id, project_id, element_type, data, label_text, version, is_deleted)
			 VALUES (?, ?, ?, ?, ?, 1, 0)`,
			id, projectID, elementType, string(data), label,
		)
		if err != nil {
			return nil, "", fmt.Errorf("insert element %q: %w", id, err)
		}
	case err != nil:
		return nil, "", fmt.Errorf("lookup element %q: %w", id, err)
	case prevDeleted:
		// Recreating a deleted id starts a fresh lineage at version 1.
		version, op = 1, models.OpCreate
		_, err = tx.Exec(
			`UPDATE elements SET element_type = ?, data = ?, label_text = ?, version = 1, is_deleted = 0,
			 created_at = datetime('now'), updated_at = datetime('now') WHERE id = ? AND project_id = ?`,
			elementType, string(data), label, id, projectID,
		)
		if err != nil {
			return nil, "", fmt.Errorf("recreate element %q: %w", id, err)
		}
	default:
		version, op = prevVersion+1, models.OpUpdate
		_, err = tx.Exec(
			`UPDATE elements SET element_type = ?, data = ?, label_text = ?, version = ?,
			 updated_at = datetime('now') WHERE id = ? AND project_id = ?`,
			elementType, string(data), label, version, id, projectID,
		)
		if err != nil {
			return nil, "", fmt.Errorf("update element %q: %w", id, err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO element_versions (element_id, project_id, version, data, operation)
		 VALUES (?, ?, ?, ?, ?)`,
		id, projectID, version, string(data), op,
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert version row for %q: %w", id, err)
	}

	if err := refreshFTS(tx, projectID, id, elementType, label); err != nil {
		return nil, "", err
	}

	row := tx.QueryRow(
		`SELECT id, project_id, element_type, data, label_text, created_at, updated_at, version, is_deleted
		 FROM elements WHERE id = ? AND project_id = ?`,
		id, projectID,
	)
	el, err := scanElement(row)
	if err != nil {
		return nil, "", fmt.Errorf("reread element %q: %w", id, err)
	}
	return el, op, nil
}

func deleteElementTx(tx *sql.Tx, projectID, id string) (bool, error) {
	var version int64
	var data string
	err := tx.QueryRow(
		`SELECT version, data FROM elements WHERE id = ? AND project_id = ? AND is_deleted = 0`,
		id, projectID,
	).Scan(&version, &data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup element %q: %w", id, err)
	}

	_, err = tx.Exec(
		`UPDATE elements SET is_deleted = 1, version = ?, updated_at = datetime('now')
		 WHERE id = ? AND project_id = ?`,
		version+1, id, projectID,
	)
	if err != nil {
		return false, fmt.Errorf("soft-delete element %q: %w", id, err)
	}

	_, err = tx.Exec(
		`INSERT INTO element_versions (element_id, project_id, version, data, operation)
		 VALUES (?, ?, ?, ?, 'delete')`,
		id, projectID, version+1, data,
	)
	if err != nil {
		return false, fmt.Errorf("insert delete version row for %q: %w", id, err)
	}

	_, err = tx.Exec(
		`DELETE FROM elements_fts WHERE element_id = ? AND project_id = ?`, id, projectID,
	)
	if err != nil {
		return false, fmt.Errorf("remove fts entry for %q: %w", id, err)
	}
	return true, nil
}

func clearElementsTx(tx *sql.Tx, projectID string) (int, error) {
	rows, err := tx.Query(
		`SELECT id, version, data FROM elements WHERE project_id = ? AND is_deleted = 0`, projectID,
	)
	if err != nil {
		return 0, fmt.Errorf("query live elements: %w", err)
	}

	type live struct {
		id      string
		version int64
		data    string
	}
	var lives []live
	for rows.Next() {
		var l live
		if err := rows.Scan(&l.id, &l.version, &l.data); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan element: %w", err)
		}
		lives = append(lives, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, l := range lives {
		_, err = tx.Exec(
			`UPDATE elements SET is_deleted = 1, version = ?, updated_at = datetime('now')
			 WHERE id = ? AND project_id = ?`,
			l.version+1, l.id, projectID,
		)
		if err != nil {
			return 0, fmt.Errorf("soft-delete element %q: %w", l.id, err)
		}
		_, err = tx.Exec(
			`INSERT INTO element_versions (element_id, project_id, version, data, operation)
			 VALUES (?, ?, ?, ?, 'delete')`,
			l.id, projectID, l.version+1, l.data,
		)
		if err != nil {
			return 0, fmt.Errorf("insert delete version row for %q: %w", l.id, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM elements_fts WHERE project_id = ?`, projectID); err != nil {
		return 0, fmt.Errorf("clear fts entries: %w", err)
	}
	return len(lives), nil
}

// refreshFTS replaces the element's full-text entry. Entries exist only for
// live elements with a non-null label.
func refreshFTS(tx *sql.Tx, projectID, id, elementType string, label *string) error {
	_, err := tx.Exec(
		`DELETE FROM elements_fts WHERE element_id = ? AND project_id = ?`, id, projectID,
	)
	if err != nil {
		return fmt.Errorf("drop fts entry for %q: %w", id, err)
	}
	if label == nil {
		return nil
	}
	_, err = tx.Exec(
		`INSERT INTO elements_fts (label_text, element_type, element_id, project_id) VALUES (?, ?, ?, ?)`,
		*label, elementType, id, projectID,
	)
	if err != nil {
		return fmt.Errorf("insert fts entry for %q: %w", id, err)
	}
	return nil
}

// extractLabel pulls display text out of an element payload: an explicit
// label object's text wins, then a direct text field, else no label.
func extractLabel(payload map[string]any) *string {
	if label, ok := payload["label"].(map[string]any); ok {
		if text, ok := label["text"].(string); ok && text != "" {
			return &text
		}
	}
	if text, ok := payload["text"].(string); ok && text != "" {
		return &text
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElement(row rowScanner) (*models.Element, error) {
	var el models.Element
	var data string
	var label sql.NullString
	var deleted int
	err := row.Scan(&el.ID, &el.ProjectID, &el.Type, &data, &label, &el.CreatedAt, &el.UpdatedAt, &el.Version, &deleted)
	if err != nil {
		return nil, err
	}
	el.Data = json.RawMessage(data)
	if label.Valid {
		el.LabelText = &label.String
	}
	el.IsDeleted = deleted != 0
	return &el, nil
}
