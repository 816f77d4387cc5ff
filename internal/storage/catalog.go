package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
)

// DefaultWorkspace is the workspace path of the tenant that always exists.
const DefaultWorkspace = "default"

// TenantID derives a stable tenant id from a workspace path. The same path
// always hashes to the same id, across restarts and processes.
func TenantID(workspacePath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(workspacePath)))
	return hex.EncodeToString(sum[:])[:16]
}

// EnsureTenant returns the tenant for the workspace path, creating it on
// first reference. Tenants are never deleted. last_accessed_at is bumped on
// every call.
func (s *Store) EnsureTenant(workspacePath, name string) (*models.Tenant, error) {
	if workspacePath == "" {
		workspacePath = DefaultWorkspace
	}
	if name == "" {
		name = filepath.Base(workspacePath)
	}
	id := TenantID(workspacePath)

	_, err := s.db.Exec(
		`INSERT INTO tenants (id, name, workspace_path) VALUES (?, ?, ?)
		 ON CONFLICT(workspace_path) DO UPDATE SET last_accessed_at = datetime('now')`,
		id, name, filepath.Clean(workspacePath),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert tenant: %w", err)
	}
	return s.GetTenant(id)
}

// GetTenant looks up a tenant by id.
func (s *Store) GetTenant(id string) (*models.Tenant, error) {
	row := s.db.QueryRow(
		`SELECT id, name, workspace_path, created_at, last_accessed_at FROM tenants WHERE id = ?`, id,
	)
	var t models.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.WorkspacePath, &t.CreatedAt, &t.LastAccessedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return &t, nil
}

// ListTenants returns all tenants, most recently accessed first.
func (s *Store) ListTenants() ([]models.Tenant, error) {
	rows, err := s.db.Query(
		`SELECT id, name, workspace_path, created_at, last_accessed_at FROM tenants ORDER BY last_accessed_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.WorkspacePath, &t.CreatedAt, &t.LastAccessedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// DefaultProject returns the tenant's earliest-created project, creating a
// "default" project lazily when the tenant has none.
func (s *Store) DefaultProject(tenantID string) (*models.Project, error) {
	row := s.db.QueryRow(
		`SELECT id, name, description, tenant_id, created_at, updated_at
		 FROM projects WHERE tenant_id = ? ORDER BY created_at, id LIMIT 1`,
		tenantID,
	)
	proj, err := scanProject(row)
	if err == nil {
		return proj, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("lookup default project: %w", err)
	}
	return s.CreateProject(tenantID, "default", "")
}

// CreateProject creates a project under a tenant.
func (s *Store) CreateProject(tenantID, name, description string) (*models.Project, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, description, tenant_id) VALUES (?, ?, ?, ?)`,
		id, name, description, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return s.GetProject(id)
}

// GetProject looks up a project by id.
func (s *Store) GetProject(id string) (*models.Project, error) {
	row := s.db.QueryRow(
		`SELECT id, name, description, tenant_id, created_at, updated_at FROM projects WHERE id = ?`, id,
	)
	proj, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return proj, nil
}

// GetProjectByName looks up a project by name within a tenant.
func (s *Store) GetProjectByName(tenantID, name string) (*models.Project, error) {
	row := s.db.QueryRow(
		`SELECT id, name, description, tenant_id, created_at, updated_at
		 FROM projects WHERE tenant_id = ? AND name = ?`,
		tenantID, name,
	)
	proj, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return proj, nil
}

// ListProjects returns a tenant's projects, earliest first.
func (s *Store) ListProjects(tenantID string) ([]models.Project, error) {
	rows, err := s.db.Query(
		`SELECT id, name, description, tenant_id, created_at, updated_at
		 FROM projects WHERE tenant_id = ? ORDER BY created_at, id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.TenantID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(row *sql.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.TenantID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
