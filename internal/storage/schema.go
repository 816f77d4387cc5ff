package storage

// Schema is the SQL schema for canvas.db. Everything lives in one database:
// tenant and project catalogs, the element table, the append-only version
// trail, and named snapshots.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    workspace_path   TEXT NOT NULL UNIQUE,
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    last_accessed_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS projects (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT DEFAULT '',
    tenant_id   TEXT NOT NULL REFERENCES tenants(id),
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_projects_tenant ON projects(tenant_id, created_at);

CREATE TABLE IF NOT EXISTS elements (
    id          TEXT NOT NULL,
    project_id  TEXT NOT NULL REFERENCES projects(id),
    element_type TEXT NOT NULL,
    data        TEXT NOT NULL,
    label_text  TEXT NULL,
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
    version     INTEGER NOT NULL DEFAULT 1,
    is_deleted  INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (id, project_id)
);

CREATE INDEX IF NOT EXISTS idx_elements_live ON elements(project_id) WHERE is_deleted = 0;

CREATE TABLE IF NOT EXISTS element_versions (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    element_id  TEXT NOT NULL,
    project_id  TEXT NOT NULL,
    version     INTEGER NOT NULL,
    data        TEXT NOT NULL,
    operation   TEXT NOT NULL CHECK(operation IN ('create', 'update', 'delete')),
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_versions_element ON element_versions(project_id, element_id, seq);

CREATE TABLE IF NOT EXISTS snapshots (
    project_id  TEXT NOT NULL REFERENCES projects(id),
    name        TEXT NOT NULL,
    elements    TEXT NOT NULL,
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (project_id, name)
);

CREATE VIRTUAL TABLE IF NOT EXISTS elements_fts USING fts5(
    label_text,
    element_type,
    element_id UNINDEXED,
    project_id UNINDEXED
);
`

// The full-text index is maintained inside the element mutation transactions
// rather than by triggers: label_text is derived in Go from the JSON payload,
// and soft-deleted rows must drop out of the index while staying in the table.
