package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

)

// rrfK is the reciprocal-rank-fusion constant.
const rrfK = 60.0

// overFetch widens vector/lexical result sets before visibility filtering.
const overFetch = 4

// SQLiteStore implements Store backed by SQLite with an FTS5 lexical table
// and, in sqlite_vec builds, a vec0 vector table.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the database at dbPath and initializes the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open(driverName, dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) UpsertRepo(ctx context.Context, r Repository) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repos (id, name, origin, root_path, current_commit)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			origin = excluded.origin,
			root_path = excluded.root_path,
			current_commit = excluded.current_commit
	`, r.ID, r.Name, r.Origin, r.RootPath, r.CurrentCommit)
	return err
}

func (s *SQLiteStore) GetRepo(ctx context.Context, id string) (Repository, bool, error) {
	return s.scanRepo(s.db.QueryRowContext(ctx,
		"SELECT id, name, origin, root_path, current_commit FROM repos WHERE id = ?", id))
}

func (s *SQLiteStore) RepoByRoot(ctx context.Context, root string) (Repository, bool, error) {
	return s.scanRepo(s.db.QueryRowContext(ctx,
		"SELECT id, name, origin, root_path, current_commit FROM repos WHERE root_path = ?", root))
}

func (s *SQLiteStore) scanRepo(row *sql.Row) (Repository, bool, error) {
	var r Repository
	err := row.Scan(&r.ID, &r.Name, &r.Origin, &r.RootPath, &r.CurrentCommit)
	if err == sql.ErrNoRows {
		return Repository{}, false, nil
	}
	if err != nil {
		return Repository{}, false, err
	}
	return r, true, nil
}

func (s *SQLiteStore) LatestFileVersion(ctx context.Context, repoID, path string) (FileVersion, bool, error) {
	var v FileVersion
	var indexedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, repo_id, project_dir, file_path, content_hash, language, indexed_at
		FROM file_versions WHERE repo_id = ? AND file_path = ?
		ORDER BY id DESC LIMIT 1
	`, repoID, path).Scan(&v.ID, &v.RepoID, &v.ProjectDir, &v.FilePath, &v.ContentHash, &v.Language, &indexedAt)
	if err == sql.ErrNoRows {
		return FileVersion{}, false, nil
	}
	if err != nil {
		return FileVersion{}, false, err
	}
	v.IndexedAt = time.Unix(0, indexedAt).UTC()
	return v, true, nil
}

// WriteFileIndex writes a new version and its extraction records in one
// transaction. The previous version's rows are untouched, so queries keep
// seeing consistent data until the commit lands. ChunkID fields on
// b.Definitions and b.References index into b.Chunks and are rewritten to
// the inserted chunk IDs.
func (s *SQLiteStore) WriteFileIndex(ctx context.Context, b WriteBatch) (FileVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return FileVersion{}, err
	}
	defer tx.Rollback()

	v := b.Version
	if v.IndexedAt.IsZero() {
		v.IndexedAt = time.Now().UTC()
	}

	// Same content hash already indexed: return it unchanged.
	var existingID int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM file_versions WHERE repo_id = ? AND file_path = ? AND content_hash = ?",
		v.RepoID, v.FilePath, v.ContentHash).Scan(&existingID)
	if err == nil {
		v.ID = existingID
		if b.Commit != nil {
			if err := attachCommitTx(ctx, tx, existingID, b.Commit.CommitHash, b.Commit.CommittedAt); err != nil {
				return FileVersion{}, err
			}
		}
		return v, tx.Commit()
	}
	if err != sql.ErrNoRows {
		return FileVersion{}, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO file_versions (repo_id, project_dir, file_path, content_hash, language, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.RepoID, v.ProjectDir, v.FilePath, v.ContentHash, v.Language, v.IndexedAt.UnixNano())
	if err != nil {
		return FileVersion{}, err
	}
	v.ID, err = res.LastInsertId()
	if err != nil {
		return FileVersion{}, err
	}

	chunkIDs := make([]int64, len(b.Chunks))
	for i, c := range b.Chunks {
		refSyms, err := json.Marshal(c.RefSymbols)
		if err != nil {
			return FileVersion{}, err
		}
		hasVector := 0
		if vectorIndexAvailable && i < len(b.Vectors) && b.Vectors[i] != nil {
			hasVector = 1
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (file_version_id, name, decl_type, language, start_line, end_line, content, commentary, ref_symbols, has_vector)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, v.ID, c.Name, c.DeclType, c.Language, c.StartLine, c.EndLine, c.Content, c.Commentary, string(refSyms), hasVector)
		if err != nil {
			return FileVersion{}, err
		}
		chunkIDs[i], err = res.LastInsertId()
		if err != nil {
			return FileVersion{}, err
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fts_chunks (rowid, content, commentary, name) VALUES (?, ?, ?, ?)",
			chunkIDs[i], c.Content, c.Commentary, c.Name); err != nil {
			return FileVersion{}, err
		}

		if hasVector == 1 {
			blob, err := serializeVector(b.Vectors[i])
			if err != nil {
				return FileVersion{}, fmt.Errorf("serialize embedding: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)",
				chunkIDs[i], blob); err != nil {
				return FileVersion{}, err
			}
		}
	}

	for _, d := range b.Definitions {
		chunkID := int64(0)
		if int(d.ChunkID) >= 0 && int(d.ChunkID) < len(chunkIDs) {
			chunkID = chunkIDs[d.ChunkID]
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO definitions (file_version_id, chunk_id, identifier, entity_type, start_line, end_line)
			VALUES (?, ?, ?, ?, ?, ?)
		`, v.ID, chunkID, d.Identifier, d.EntityType, d.StartLine, d.EndLine); err != nil {
			return FileVersion{}, err
		}
	}

	for _, r := range b.References {
		chunkID := int64(0)
		if int(r.ChunkID) >= 0 && int(r.ChunkID) < len(chunkIDs) {
			chunkID = chunkIDs[r.ChunkID]
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO refs (file_version_id, chunk_id, identifier, kind, line, import_path)
			VALUES (?, ?, ?, ?, ?, ?)
		`, v.ID, chunkID, r.Identifier, r.Kind, r.Line, r.ImportPath); err != nil {
			return FileVersion{}, err
		}
	}

	if b.Commit != nil {
		if err := attachCommitTx(ctx, tx, v.ID, b.Commit.CommitHash, b.Commit.CommittedAt); err != nil {
			return FileVersion{}, err
		}
	}

	return v, tx.Commit()
}

func attachCommitTx(ctx context.Context, tx *sql.Tx, versionID int64, hash string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO commit_file_versions (file_version_id, commit_hash, committed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(file_version_id, commit_hash) DO NOTHING
	`, versionID, hash, at.UnixNano())
	return err
}

func (s *SQLiteStore) AttachCommit(ctx context.Context, fileVersionID int64, commitHash string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := attachCommitTx(ctx, tx, fileVersionID, commitHash, at); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteChunksForFileVersion(ctx context.Context, fileVersionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := deleteVersionDataTx(ctx, tx, fileVersionID); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteVersionDataTx(ctx context.Context, tx *sql.Tx, fileVersionID int64) error {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM chunks WHERE file_version_id = ?", fileVersionID)
	if err != nil {
		return err
	}
	var chunkIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		chunkIDs = append(chunkIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range chunkIDs {
		if vectorIndexAvailable {
			if _, err := tx.ExecContext(ctx, "DELETE FROM vec_chunks WHERE chunk_id = ?", id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM fts_chunks WHERE rowid = ?", id); err != nil {
			return err
		}
	}
	for _, table := range []string{"definitions", "refs", "chunks"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE file_version_id = ?", fileVersionID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) DeleteRepoData(ctx context.Context, repoID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM file_versions WHERE repo_id = ?", repoID)
	if err != nil {
		return err
	}
	var versionIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		versionIDs = append(versionIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range versionIDs {
		if err := deleteVersionDataTx(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM commit_file_versions WHERE file_version_id = ?", id); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM file_versions WHERE repo_id = ?", repoID); err != nil {
		return err
	}
	return tx.Commit()
}

// visibleVersions returns the file version IDs visible in scope: the latest
// version per path for unpinned repos, or the newest version at or before
// the pinned commit's timestamp for pinned ones. Paths with no commit
// provenance fall back to their latest version.
func (s *SQLiteStore) visibleVersions(ctx context.Context, scope Scope) (map[int64]bool, error) {
	visible := make(map[int64]bool)
	for _, repoID := range scope.RepoIDs {
		pin := scope.CommitPins[repoID]
		ids, err := s.visibleForRepo(ctx, repoID, pin)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			visible[id] = true
		}
	}
	return visible, nil
}

func (s *SQLiteStore) visibleForRepo(ctx context.Context, repoID, pin string) ([]int64, error) {
	if pin == "" {
		return s.latestVersionIDs(ctx, repoID)
	}

	var pinAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(c.committed_at) FROM commit_file_versions c
		JOIN file_versions v ON v.id = c.file_version_id
		WHERE v.repo_id = ? AND c.commit_hash = ?
	`, repoID, pin).Scan(&pinAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if !pinAt.Valid {
		// Unknown pin: degrade to latest rather than returning nothing.
		return s.latestVersionIDs(ctx, repoID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.file_path, MAX(c.committed_at)
		FROM file_versions v
		JOIN commit_file_versions c ON c.file_version_id = v.id
		WHERE v.repo_id = ? AND c.committed_at <= ?
		GROUP BY v.id
	`, repoID, pinAt.Int64)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type best struct {
		id int64
		at int64
	}
	byPath := make(map[string]best)
	for rows.Next() {
		var id int64
		var path string
		var at int64
		if err := rows.Scan(&id, &path, &at); err != nil {
			return nil, err
		}
		b, ok := byPath[path]
		if !ok || at > b.at || (at == b.at && id > b.id) {
			byPath[path] = best{id: id, at: at}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(byPath))
	for _, b := range byPath {
		ids = append(ids, b.id)
	}

	// Paths whose provenance starts after the pin were absent from that
	// commit and stay hidden. Only paths that never gained commit provenance
	// at all fall back to their latest version.
	hasAnyCommit := make(map[string]bool)
	crows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT v.file_path
		FROM file_versions v
		JOIN commit_file_versions c ON c.file_version_id = v.id
		WHERE v.repo_id = ?
	`, repoID)
	if err != nil {
		return nil, err
	}
	for crows.Next() {
		var path string
		if err := crows.Scan(&path); err != nil {
			crows.Close()
			return nil, err
		}
		hasAnyCommit[path] = true
	}
	crows.Close()
	if err := crows.Err(); err != nil {
		return nil, err
	}

	latest, err := s.latestVersionPaths(ctx, repoID)
	if err != nil {
		return nil, err
	}
	for path, id := range latest {
		if !hasAnyCommit[path] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *SQLiteStore) latestVersionIDs(ctx context.Context, repoID string) ([]int64, error) {
	byPath, err := s.latestVersionPaths(ctx, repoID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(byPath))
	for _, id := range byPath {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *SQLiteStore) latestVersionPaths(ctx context.Context, repoID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT file_path, MAX(id) FROM file_versions WHERE repo_id = ? GROUP BY file_path", repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byPath := make(map[string]int64)
	for rows.Next() {
		var path string
		var id int64
		if err := rows.Scan(&path, &id); err != nil {
			return nil, err
		}
		byPath[path] = id
	}
	return byPath, rows.Err()
}

func (s *SQLiteStore) HybridQuery(ctx context.Context, req HybridRequest) ([]Candidate, error) {
	if req.K <= 0 {
		req.K = 10
	}
	visible, err := s.visibleVersions(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	fetch := req.K * overFetch

	type component struct {
		vectorScore  float64
		lexicalScore float64
		fused        float64
	}
	scores := make(map[int64]*component)
	get := func(id int64) *component {
		c, ok := scores[id]
		if !ok {
			c = &component{}
			scores[id] = c
		}
		return c
	}

	if req.Vector != nil && vectorIndexAvailable {
		blob, err := serializeVector(req.Vector)
		if err != nil {
			return nil, fmt.Errorf("serialize query embedding: %w", err)
		}
		rows, err := s.db.QueryContext(ctx, `
			SELECT chunk_id, distance FROM vec_chunks
			WHERE embedding MATCH ? ORDER BY distance LIMIT ?
		`, blob, fetch)
		if err != nil {
			return nil, fmt.Errorf("vector query: %w", err)
		}
		rank := 0
		for rows.Next() {
			var id int64
			var dist float64
			if err := rows.Scan(&id, &dist); err != nil {
				rows.Close()
				return nil, err
			}
			rank++
			c := get(id)
			c.vectorScore = 1.0 / (1.0 + dist)
			c.fused += 1.0 / (rrfK + float64(rank))
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if q := ftsQuery(req.Text); q != "" {
		rows, err := s.db.QueryContext(ctx, `
			SELECT rowid, rank FROM fts_chunks WHERE fts_chunks MATCH ? ORDER BY rank LIMIT ?
		`, q, fetch)
		// Lexical syntax errors are non-fatal: vector results still serve.
		if err == nil {
			rank := 0
			for rows.Next() {
				var id int64
				var bm25 float64
				if err := rows.Scan(&id, &bm25); err != nil {
					rows.Close()
					return nil, err
				}
				rank++
				c := get(id)
				c.lexicalScore = -bm25
				c.fused += 1.0 / (rrfK + float64(rank))
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return nil, err
			}
		}
	}

	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]].fused != scores[ids[j]].fused {
			return scores[ids[i]].fused > scores[ids[j]].fused
		}
		return ids[i] < ids[j]
	})

	infos, err := s.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, info := range infos {
		if !visible[info.Chunk.FileVersionID] {
			continue
		}
		c := scores[info.Chunk.ID]
		out = append(out, Candidate{
			Chunk:        info.Chunk,
			RepoID:       info.RepoID,
			FilePath:     info.FilePath,
			VectorScore:  c.vectorScore,
			LexicalScore: c.lexicalScore,
			Score:        c.fused,
		})
		if len(out) >= req.K {
			break
		}
	}
	return out, nil
}

// ftsQuery rewrites free text into a safe FTS5 query: quoted tokens joined
// with OR.
func ftsQuery(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, " OR ")
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []int64) ([]ChunkInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.id, c.file_version_id, c.name, c.decl_type, c.language, c.start_line, c.end_line,
		       c.content, c.commentary, c.ref_symbols, c.has_vector, v.repo_id, v.file_path
		FROM chunks c JOIN file_versions v ON v.id = c.file_version_id
		WHERE c.id IN (%s)
	`, placeholders(len(ids))), int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]ChunkInfo, len(ids))
	for rows.Next() {
		info, err := scanChunkInfo(rows)
		if err != nil {
			return nil, err
		}
		byID[info.Chunk.ID] = info
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ChunkInfo, 0, len(byID))
	for _, id := range ids {
		if info, ok := byID[id]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func scanChunkInfo(rows *sql.Rows) (ChunkInfo, error) {
	var info ChunkInfo
	var refSyms string
	var hasVector int
	err := rows.Scan(&info.Chunk.ID, &info.Chunk.FileVersionID, &info.Chunk.Name, &info.Chunk.DeclType,
		&info.Chunk.Language, &info.Chunk.StartLine, &info.Chunk.EndLine, &info.Chunk.Content,
		&info.Chunk.Commentary, &refSyms, &hasVector, &info.RepoID, &info.FilePath)
	if err != nil {
		return ChunkInfo{}, err
	}
	info.Chunk.HasVector = hasVector == 1
	if refSyms != "" && refSyms != "[]" {
		if err := json.Unmarshal([]byte(refSyms), &info.Chunk.RefSymbols); err != nil {
			return ChunkInfo{}, err
		}
	}
	return info, nil
}

func (s *SQLiteStore) ChunksForFile(ctx context.Context, repoID, path string, scope Scope) ([]Chunk, error) {
	ids, err := s.visibleForRepo(ctx, repoID, scope.CommitPins[repoID])
	if err != nil {
		return nil, err
	}
	visible := make(map[int64]bool, len(ids))
	for _, id := range ids {
		visible[id] = true
	}

	var versionID int64
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM file_versions WHERE repo_id = ? AND file_path = ? ORDER BY id DESC", repoID, path)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		if visible[id] {
			versionID = id
			break
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if versionID == 0 {
		return nil, nil
	}

	crows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.file_version_id, c.name, c.decl_type, c.language, c.start_line, c.end_line,
		       c.content, c.commentary, c.ref_symbols, c.has_vector, v.repo_id, v.file_path
		FROM chunks c JOIN file_versions v ON v.id = c.file_version_id
		WHERE c.file_version_id = ? ORDER BY c.start_line
	`, versionID)
	if err != nil {
		return nil, err
	}
	defer crows.Close()

	var chunks []Chunk
	for crows.Next() {
		info, err := scanChunkInfo(crows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, info.Chunk)
	}
	return chunks, crows.Err()
}

func (s *SQLiteStore) DefinitionsByIdentifier(ctx context.Context, identifier string, f DefFilter) ([]Definition, error) {
	visible, err := s.visibleVersions(ctx, f.Scope)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT d.id, d.file_version_id, d.chunk_id, d.identifier, d.entity_type, d.start_line, d.end_line,
		       v.repo_id, v.file_path, v.indexed_at
		FROM definitions d JOIN file_versions v ON v.id = d.file_version_id
		WHERE d.identifier = ?`
	args := []any{identifier}
	if f.EntityType != "" {
		query += " AND d.entity_type = ?"
		args = append(args, f.EntityType)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var d Definition
		var indexedAt int64
		if err := rows.Scan(&d.ID, &d.FileVersionID, &d.ChunkID, &d.Identifier, &d.EntityType,
			&d.StartLine, &d.EndLine, &d.RepoID, &d.FilePath, &indexedAt); err != nil {
			return nil, err
		}
		d.VersionTime = time.Unix(0, indexedAt).UTC()
		if visible[d.FileVersionID] {
			defs = append(defs, d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.fillVersionTimes(ctx, defs)
}

// fillVersionTimes replaces indexed_at with the newest commit timestamp for
// versions that have commit provenance.
func (s *SQLiteStore) fillVersionTimes(ctx context.Context, defs []Definition) ([]Definition, error) {
	if len(defs) == 0 {
		return defs, nil
	}
	ids := make([]int64, 0, len(defs))
	seen := make(map[int64]bool)
	for _, d := range defs {
		if !seen[d.FileVersionID] {
			seen[d.FileVersionID] = true
			ids = append(ids, d.FileVersionID)
		}
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT file_version_id, MAX(committed_at) FROM commit_file_versions
		WHERE file_version_id IN (%s) GROUP BY file_version_id
	`, placeholders(len(ids))), int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	times := make(map[int64]time.Time)
	for rows.Next() {
		var id int64
		var at int64
		if err := rows.Scan(&id, &at); err != nil {
			return nil, err
		}
		times[id] = time.Unix(0, at).UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range defs {
		if at, ok := times[defs[i].FileVersionID]; ok {
			defs[i].VersionTime = at
		}
	}
	return defs, nil
}

func (s *SQLiteStore) DefinitionsInChunks(ctx context.Context, chunkIDs []int64) ([]Definition, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT d.id, d.file_version_id, d.chunk_id, d.identifier, d.entity_type, d.start_line, d.end_line,
		       v.repo_id, v.file_path, v.indexed_at
		FROM definitions d JOIN file_versions v ON v.id = d.file_version_id
		WHERE d.chunk_id IN (%s)
	`, placeholders(len(chunkIDs))), int64Args(chunkIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var d Definition
		var indexedAt int64
		if err := rows.Scan(&d.ID, &d.FileVersionID, &d.ChunkID, &d.Identifier, &d.EntityType,
			&d.StartLine, &d.EndLine, &d.RepoID, &d.FilePath, &indexedAt); err != nil {
			return nil, err
		}
		d.VersionTime = time.Unix(0, indexedAt).UTC()
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (s *SQLiteStore) ReferencesInChunks(ctx context.Context, chunkIDs []int64) ([]Reference, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT r.id, r.file_version_id, r.chunk_id, r.identifier, r.kind, r.line, r.import_path,
		       v.repo_id, v.file_path
		FROM refs r JOIN file_versions v ON v.id = r.file_version_id
		WHERE r.chunk_id IN (%s)
	`, placeholders(len(chunkIDs))), int64Args(chunkIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRefs(rows)
}

func (s *SQLiteStore) ReferencesByIdentifier(ctx context.Context, identifier string, f RefFilter) ([]Reference, error) {
	visible, err := s.visibleVersions(ctx, f.Scope)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT r.id, r.file_version_id, r.chunk_id, r.identifier, r.kind, r.line, r.import_path,
		       v.repo_id, v.file_path
		FROM refs r JOIN file_versions v ON v.id = r.file_version_id
		WHERE r.identifier = ?`
	args := []any{identifier}
	if len(f.Kinds) > 0 {
		query += fmt.Sprintf(" AND r.kind IN (%s)", placeholders(len(f.Kinds)))
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if f.PathContains != "" {
		query += " AND v.file_path LIKE ?"
		args = append(args, "%"+f.PathContains+"%")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs, err := scanRefs(rows)
	if err != nil {
		return nil, err
	}
	out := refs[:0]
	for _, r := range refs {
		if visible[r.FileVersionID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func scanRefs(rows *sql.Rows) ([]Reference, error) {
	var refs []Reference
	for rows.Next() {
		var r Reference
		if err := rows.Scan(&r.ID, &r.FileVersionID, &r.ChunkID, &r.Identifier, &r.Kind,
			&r.Line, &r.ImportPath, &r.RepoID, &r.FilePath); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func (s *SQLiteStore) ListFiles(ctx context.Context, repoID string) ([]FileEntry, error) {
	ids, err := s.latestVersionIDs(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT v.file_path, v.language, COUNT(c.id)
		FROM file_versions v LEFT JOIN chunks c ON c.file_version_id = v.id
		WHERE v.id IN (%s) GROUP BY v.id ORDER BY v.file_path
	`, placeholders(len(ids))), int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileEntry
	for rows.Next() {
		var f FileEntry
		if err := rows.Scan(&f.Path, &f.Language, &f.Chunks); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
