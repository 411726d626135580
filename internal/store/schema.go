package store

import (
	"database/sql"
	"fmt"
)

// embeddingDim must match the embedding model's output width.
const embeddingDim = 768

// Timestamps are stored as integer Unix nanoseconds so aggregate queries
// (MAX over committed_at) behave identically across drivers.
const ddl = `
CREATE TABLE IF NOT EXISTS repos (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL DEFAULT '',
    origin         TEXT NOT NULL DEFAULT '',
    root_path      TEXT NOT NULL DEFAULT '',
    current_commit TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS file_versions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    repo_id      TEXT NOT NULL REFERENCES repos(id),
    project_dir  TEXT NOT NULL DEFAULT '',
    file_path    TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    language     TEXT NOT NULL DEFAULT '',
    indexed_at   INTEGER NOT NULL,
    UNIQUE(repo_id, file_path, content_hash)
);
CREATE INDEX IF NOT EXISTS idx_versions_path ON file_versions(repo_id, file_path);

CREATE TABLE IF NOT EXISTS commit_file_versions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    file_version_id INTEGER NOT NULL REFERENCES file_versions(id) ON DELETE CASCADE,
    commit_hash     TEXT NOT NULL,
    committed_at    INTEGER NOT NULL,
    UNIQUE(file_version_id, commit_hash)
);
CREATE INDEX IF NOT EXISTS idx_cfv_commit ON commit_file_versions(commit_hash);

CREATE TABLE IF NOT EXISTS chunks (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    file_version_id INTEGER NOT NULL REFERENCES file_versions(id) ON DELETE CASCADE,
    name            TEXT NOT NULL DEFAULT '',
    decl_type       TEXT NOT NULL DEFAULT '',
    language        TEXT NOT NULL DEFAULT '',
    start_line      INTEGER NOT NULL,
    end_line        INTEGER NOT NULL,
    content         TEXT NOT NULL,
    commentary      TEXT NOT NULL DEFAULT '',
    ref_symbols     TEXT NOT NULL DEFAULT '[]',
    has_vector      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_chunks_version ON chunks(file_version_id);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
    content, commentary, name
);

CREATE TABLE IF NOT EXISTS definitions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    file_version_id INTEGER NOT NULL REFERENCES file_versions(id) ON DELETE CASCADE,
    chunk_id        INTEGER NOT NULL DEFAULT 0,
    identifier      TEXT NOT NULL,
    entity_type     TEXT NOT NULL DEFAULT '',
    start_line      INTEGER NOT NULL,
    end_line        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_defs_identifier ON definitions(identifier);
CREATE INDEX IF NOT EXISTS idx_defs_chunk ON definitions(chunk_id);

CREATE TABLE IF NOT EXISTS refs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    file_version_id INTEGER NOT NULL REFERENCES file_versions(id) ON DELETE CASCADE,
    chunk_id        INTEGER NOT NULL DEFAULT 0,
    identifier      TEXT NOT NULL,
    kind            TEXT NOT NULL DEFAULT '',
    line            INTEGER NOT NULL,
    import_path     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_refs_identifier ON refs(identifier);
CREATE INDEX IF NOT EXISTS idx_refs_chunk ON refs(chunk_id);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const vecDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d]
);
`

// initSchema creates the schema tables if they don't exist. The vector table
// exists only in builds whose driver loads the vec0 extension.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(ddl); err != nil {
		return err
	}
	if vectorIndexAvailable {
		if _, err := db.Exec(fmt.Sprintf(vecDDL, embeddingDim)); err != nil {
			return err
		}
	}
	return nil
}
