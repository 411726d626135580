package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store with the same visibility semantics as the
// SQLite implementation. It is used by tests and never persists anything.
type MemStore struct {
	mu sync.Mutex

	repos    map[string]Repository
	versions []FileVersion
	commits  []CommitFileVersion
	chunks   []Chunk
	vectors  map[int64][]float32
	defs     []Definition
	refs     []Reference
	meta     map[string]string

	nextVersionID int64
	nextChunkID   int64
	nextDefID     int64
	nextRefID     int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		repos:   make(map[string]Repository),
		vectors: make(map[int64][]float32),
		meta:    make(map[string]string),
	}
}

func (m *MemStore) UpsertRepo(_ context.Context, r Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos[r.ID] = r
	return nil
}

func (m *MemStore) GetRepo(_ context.Context, id string) (Repository, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.repos[id]
	return r, ok, nil
}

func (m *MemStore) RepoByRoot(_ context.Context, root string) (Repository, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.repos {
		if r.RootPath == root {
			return r, true, nil
		}
	}
	return Repository{}, false, nil
}

func (m *MemStore) LatestFileVersion(_ context.Context, repoID, path string) (FileVersion, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best FileVersion
	found := false
	for _, v := range m.versions {
		if v.RepoID == repoID && v.FilePath == path && (!found || v.ID > best.ID) {
			best = v
			found = true
		}
	}
	return best, found, nil
}

func (m *MemStore) WriteFileIndex(_ context.Context, b WriteBatch) (FileVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := b.Version
	if v.IndexedAt.IsZero() {
		v.IndexedAt = time.Now().UTC()
	}

	for _, existing := range m.versions {
		if existing.RepoID == v.RepoID && existing.FilePath == v.FilePath && existing.ContentHash == v.ContentHash {
			if b.Commit != nil {
				m.attachLocked(existing.ID, b.Commit.CommitHash, b.Commit.CommittedAt)
			}
			return existing, nil
		}
	}

	m.nextVersionID++
	v.ID = m.nextVersionID
	m.versions = append(m.versions, v)

	chunkIDs := make([]int64, len(b.Chunks))
	for i, c := range b.Chunks {
		m.nextChunkID++
		c.ID = m.nextChunkID
		c.FileVersionID = v.ID
		if i < len(b.Vectors) && b.Vectors[i] != nil {
			c.HasVector = true
			m.vectors[c.ID] = b.Vectors[i]
		}
		m.chunks = append(m.chunks, c)
		chunkIDs[i] = c.ID
	}

	for _, d := range b.Definitions {
		m.nextDefID++
		d.ID = m.nextDefID
		d.FileVersionID = v.ID
		d.RepoID = v.RepoID
		d.FilePath = v.FilePath
		d.VersionTime = v.IndexedAt
		if int(d.ChunkID) >= 0 && int(d.ChunkID) < len(chunkIDs) {
			d.ChunkID = chunkIDs[d.ChunkID]
		}
		m.defs = append(m.defs, d)
	}

	for _, r := range b.References {
		m.nextRefID++
		r.ID = m.nextRefID
		r.FileVersionID = v.ID
		r.RepoID = v.RepoID
		r.FilePath = v.FilePath
		if int(r.ChunkID) >= 0 && int(r.ChunkID) < len(chunkIDs) {
			r.ChunkID = chunkIDs[r.ChunkID]
		}
		m.refs = append(m.refs, r)
	}

	if b.Commit != nil {
		m.attachLocked(v.ID, b.Commit.CommitHash, b.Commit.CommittedAt)
	}
	return v, nil
}

func (m *MemStore) attachLocked(versionID int64, hash string, at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	for _, c := range m.commits {
		if c.FileVersionID == versionID && c.CommitHash == hash {
			return
		}
	}
	m.commits = append(m.commits, CommitFileVersion{
		ID:            int64(len(m.commits) + 1),
		FileVersionID: versionID,
		CommitHash:    hash,
		CommittedAt:   at,
	})
}

func (m *MemStore) AttachCommit(_ context.Context, fileVersionID int64, commitHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachLocked(fileVersionID, commitHash, at)
	return nil
}

func (m *MemStore) DeleteChunksForFileVersion(_ context.Context, fileVersionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteVersionDataLocked(fileVersionID)
	return nil
}

func (m *MemStore) deleteVersionDataLocked(fileVersionID int64) {
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.FileVersionID == fileVersionID {
			delete(m.vectors, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept

	keptDefs := m.defs[:0]
	for _, d := range m.defs {
		if d.FileVersionID != fileVersionID {
			keptDefs = append(keptDefs, d)
		}
	}
	m.defs = keptDefs

	keptRefs := m.refs[:0]
	for _, r := range m.refs {
		if r.FileVersionID != fileVersionID {
			keptRefs = append(keptRefs, r)
		}
	}
	m.refs = keptRefs
}

func (m *MemStore) DeleteRepoData(_ context.Context, repoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	versionIDs := make(map[int64]bool)
	keptVersions := m.versions[:0]
	for _, v := range m.versions {
		if v.RepoID == repoID {
			versionIDs[v.ID] = true
			continue
		}
		keptVersions = append(keptVersions, v)
	}
	m.versions = keptVersions

	for id := range versionIDs {
		m.deleteVersionDataLocked(id)
	}
	keptCommits := m.commits[:0]
	for _, c := range m.commits {
		if !versionIDs[c.FileVersionID] {
			keptCommits = append(keptCommits, c)
		}
	}
	m.commits = keptCommits
	return nil
}

// visibleLocked mirrors the SQLite visibility rules.
func (m *MemStore) visibleLocked(scope Scope) map[int64]bool {
	visible := make(map[int64]bool)
	for _, repoID := range scope.RepoIDs {
		for _, id := range m.visibleForRepoLocked(repoID, scope.CommitPins[repoID]) {
			visible[id] = true
		}
	}
	return visible
}

func (m *MemStore) visibleForRepoLocked(repoID, pin string) []int64 {
	latest := make(map[string]int64)
	for _, v := range m.versions {
		if v.RepoID == repoID && v.ID > latest[v.FilePath] {
			latest[v.FilePath] = v.ID
		}
	}

	if pin == "" {
		return mapValues(latest)
	}

	commitAt := make(map[int64]time.Time)
	for _, c := range m.commits {
		if c.CommittedAt.After(commitAt[c.FileVersionID]) {
			commitAt[c.FileVersionID] = c.CommittedAt
		}
	}

	var pinAt time.Time
	for _, c := range m.commits {
		if c.CommitHash != pin {
			continue
		}
		for _, v := range m.versions {
			if v.ID == c.FileVersionID && v.RepoID == repoID && c.CommittedAt.After(pinAt) {
				pinAt = c.CommittedAt
			}
		}
	}
	if pinAt.IsZero() {
		return mapValues(latest)
	}

	type best struct {
		id int64
		at time.Time
	}
	byPath := make(map[string]best)
	withCommit := make(map[string]bool)
	for _, v := range m.versions {
		if v.RepoID != repoID {
			continue
		}
		if _, ok := commitAt[v.ID]; !ok {
			continue
		}
		// Use the newest commit time at or before the pin.
		var vt time.Time
		for _, c := range m.commits {
			if c.FileVersionID == v.ID && !c.CommittedAt.After(pinAt) && c.CommittedAt.After(vt) {
				vt = c.CommittedAt
			}
		}
		if vt.IsZero() {
			continue
		}
		withCommit[v.FilePath] = true
		b, ok := byPath[v.FilePath]
		if !ok || vt.After(b.at) || (vt.Equal(b.at) && v.ID > b.id) {
			byPath[v.FilePath] = best{id: v.ID, at: vt}
		}
	}

	ids := make([]int64, 0, len(byPath))
	for _, b := range byPath {
		ids = append(ids, b.id)
	}
	hasAnyCommit := make(map[string]bool)
	for _, v := range m.versions {
		if v.RepoID == repoID {
			if _, ok := commitAt[v.ID]; ok {
				hasAnyCommit[v.FilePath] = true
			}
		}
	}
	for path, id := range latest {
		if !hasAnyCommit[path] && !withCommit[path] {
			ids = append(ids, id)
		}
	}
	return ids
}

func mapValues(m map[string]int64) []int64 {
	out := make([]int64, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func (m *MemStore) HybridQuery(_ context.Context, req HybridRequest) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.K <= 0 {
		req.K = 10
	}
	visible := m.visibleLocked(req.Scope)
	location := m.versionLocationsLocked()

	type scored struct {
		chunk Chunk
		vec   float64
		lex   float64
		fused float64
	}
	scores := make(map[int64]*scored)
	get := func(c Chunk) *scored {
		s, ok := scores[c.ID]
		if !ok {
			s = &scored{chunk: c}
			scores[c.ID] = s
		}
		return s
	}

	if req.Vector != nil {
		type dist struct {
			chunk Chunk
			d     float64
		}
		var dists []dist
		for _, c := range m.chunks {
			vec, ok := m.vectors[c.ID]
			if !ok || !visible[c.FileVersionID] {
				continue
			}
			dists = append(dists, dist{chunk: c, d: l2(req.Vector, vec)})
		}
		sort.Slice(dists, func(i, j int) bool { return dists[i].d < dists[j].d })
		for rank, d := range dists {
			s := get(d.chunk)
			s.vec = 1.0 / (1.0 + d.d)
			s.fused += 1.0 / (rrfK + float64(rank+1))
		}
	}

	if terms := strings.Fields(strings.ToLower(req.Text)); len(terms) > 0 {
		type hit struct {
			chunk Chunk
			n     int
		}
		var hits []hit
		for _, c := range m.chunks {
			if !visible[c.FileVersionID] {
				continue
			}
			text := strings.ToLower(c.Content + " " + c.Commentary + " " + c.Name)
			n := 0
			for _, t := range terms {
				n += strings.Count(text, t)
			}
			if n > 0 {
				hits = append(hits, hit{chunk: c, n: n})
			}
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].n != hits[j].n {
				return hits[i].n > hits[j].n
			}
			return hits[i].chunk.ID < hits[j].chunk.ID
		})
		for rank, h := range hits {
			s := get(h.chunk)
			s.lex = float64(h.n)
			s.fused += 1.0 / (rrfK + float64(rank+1))
		}
	}

	all := make([]*scored, 0, len(scores))
	for _, s := range scores {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].fused != all[j].fused {
			return all[i].fused > all[j].fused
		}
		return all[i].chunk.ID < all[j].chunk.ID
	})

	var out []Candidate
	for _, s := range all {
		loc := location[s.chunk.FileVersionID]
		out = append(out, Candidate{
			Chunk:        s.chunk,
			RepoID:       loc.repoID,
			FilePath:     loc.path,
			VectorScore:  s.vec,
			LexicalScore: s.lex,
			Score:        s.fused,
		})
		if len(out) >= req.K {
			break
		}
	}
	return out, nil
}

type versionLoc struct {
	repoID string
	path   string
}

func (m *MemStore) versionLocationsLocked() map[int64]versionLoc {
	out := make(map[int64]versionLoc, len(m.versions))
	for _, v := range m.versions {
		out[v.ID] = versionLoc{repoID: v.RepoID, path: v.FilePath}
	}
	return out
}

func l2(a []float32, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (m *MemStore) GetChunks(_ context.Context, ids []int64) ([]ChunkInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	location := m.versionLocationsLocked()
	byID := make(map[int64]Chunk, len(m.chunks))
	for _, c := range m.chunks {
		byID[c.ID] = c
	}

	var out []ChunkInfo
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			continue
		}
		loc := location[c.FileVersionID]
		out = append(out, ChunkInfo{Chunk: c, RepoID: loc.repoID, FilePath: loc.path})
	}
	return out, nil
}

func (m *MemStore) ChunksForFile(_ context.Context, repoID, path string, scope Scope) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	visible := make(map[int64]bool)
	for _, id := range m.visibleForRepoLocked(repoID, scope.CommitPins[repoID]) {
		visible[id] = true
	}

	var versionID int64
	for _, v := range m.versions {
		if v.RepoID == repoID && v.FilePath == path && visible[v.ID] && v.ID > versionID {
			versionID = v.ID
		}
	}
	if versionID == 0 {
		return nil, nil
	}

	var out []Chunk
	for _, c := range m.chunks {
		if c.FileVersionID == versionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartLine < out[j].StartLine })
	return out, nil
}

func (m *MemStore) DefinitionsByIdentifier(_ context.Context, identifier string, f DefFilter) ([]Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	visible := m.visibleLocked(f.Scope)
	times := m.versionTimesLocked()

	var out []Definition
	for _, d := range m.defs {
		if d.Identifier != identifier || !visible[d.FileVersionID] {
			continue
		}
		if f.EntityType != "" && d.EntityType != f.EntityType {
			continue
		}
		if at, ok := times[d.FileVersionID]; ok {
			d.VersionTime = at
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *MemStore) versionTimesLocked() map[int64]time.Time {
	out := make(map[int64]time.Time)
	for _, c := range m.commits {
		if c.CommittedAt.After(out[c.FileVersionID]) {
			out[c.FileVersionID] = c.CommittedAt
		}
	}
	return out
}

func (m *MemStore) DefinitionsInChunks(_ context.Context, chunkIDs []int64) ([]Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[int64]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		want[id] = true
	}
	var out []Definition
	for _, d := range m.defs {
		if want[d.ChunkID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemStore) ReferencesInChunks(_ context.Context, chunkIDs []int64) ([]Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[int64]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		want[id] = true
	}
	var out []Reference
	for _, r := range m.refs {
		if want[r.ChunkID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemStore) ReferencesByIdentifier(_ context.Context, identifier string, f RefFilter) ([]Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	visible := m.visibleLocked(f.Scope)

	var out []Reference
	for _, r := range m.refs {
		if r.Identifier != identifier || !visible[r.FileVersionID] {
			continue
		}
		if len(f.Kinds) > 0 {
			ok := false
			for _, k := range f.Kinds {
				if r.Kind == k {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
		}
		if f.PathContains != "" && !strings.Contains(r.FilePath, f.PathContains) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemStore) ListFiles(_ context.Context, repoID string) ([]FileEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := make(map[string]FileVersion)
	for _, v := range m.versions {
		if v.RepoID == repoID && v.ID > latest[v.FilePath].ID {
			latest[v.FilePath] = v
		}
	}
	counts := make(map[int64]int)
	for _, c := range m.chunks {
		counts[c.FileVersionID]++
	}

	var out []FileEntry
	for path, v := range latest {
		out = append(out, FileEntry{Path: path, Language: v.Language, Chunks: counts[v.ID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *MemStore) GetMeta(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[key], nil
}

func (m *MemStore) SetMeta(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

func (m *MemStore) Close() error {
	return nil
}
