// Package scope resolves the tenant/project isolation scope for each
// operation. The element store is stateless; the process-wide "active"
// tenant and project live here, and callers may override them per call with
// an explicit workspace path.
package scope

import (
	"fmt"
	"sync"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/storage"
)

// Scope holds the process-wide active tenant and project.
type Scope struct {
	mu        sync.Mutex
	store     *storage.Store
	tenantID  string
	projectID string
}

// New creates a scope pointing at the default tenant's default project.
func New(store *storage.Store) (*Scope, error) {
	s := &Scope{store: store}
	if _, err := s.SwitchTenant(storage.DefaultWorkspace); err != nil {
		return nil, err
	}
	return s, nil
}

// Resolve returns the project id an operation should run against. An
// explicit workspace path maps to that tenant's default project for this
// call only; the active scope is untouched. Empty falls back to the active
// project.
func (s *Scope) Resolve(workspacePath string) (string, error) {
	if workspacePath == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.projectID, nil
	}

	tenant, err := s.store.EnsureTenant(workspacePath, "")
	if err != nil {
		return "", err
	}
	proj, err := s.store.DefaultProject(tenant.ID)
	if err != nil {
		return "", err
	}
	return proj.ID, nil
}

// SwitchTenant makes the tenant for the workspace path active and resets the
// active project to that tenant's default project, so the scope never points
// at another tenant's data.
func (s *Scope) SwitchTenant(workspacePath string) (*models.Tenant, error) {
	tenant, err := s.store.EnsureTenant(workspacePath, "")
	if err != nil {
		return nil, err
	}
	proj, err := s.store.DefaultProject(tenant.ID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tenantID = tenant.ID
	s.projectID = proj.ID
	s.mu.Unlock()
	return tenant, nil
}

// SwitchProject makes a project of the active tenant the active project.
func (s *Scope) SwitchProject(projectID string) (*models.Project, error) {
	proj, err := s.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if proj.TenantID != s.tenantID {
		return nil, fmt.Errorf("project %q belongs to another workspace", projectID)
	}
	s.projectID = proj.ID
	return proj, nil
}

// Active returns the current tenant and project ids.
func (s *Scope) Active() (tenantID, projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenantID, s.projectID
}

// ActiveTenant loads the active tenant record.
func (s *Scope) ActiveTenant() (*models.Tenant, error) {
	tenantID, _ := s.Active()
	return s.store.GetTenant(tenantID)
}
