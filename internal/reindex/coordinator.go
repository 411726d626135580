// Package reindex keeps the index consistent as files change: it diffs
// affected files, rewrites their chunks, definitions, and references, and
// preserves older versions for historical queries.
package reindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"quarry/internal/chunk"
	"quarry/internal/embed"
	"quarry/internal/lang"
	"quarry/internal/refs"
	"quarry/internal/store"
	"quarry/internal/walker"
)

const (
	metaEmbeddingModel = "embedding_model"

	writeRetries   = 3
	writeBaseDelay = 500 * time.Millisecond
)

// Stats reports the outcome of one reindex run.
type Stats struct {
	FilesTotal   int
	FilesIndexed int
	FilesSkipped int
	FilesFailed  int
	ChunksTotal  int
}

// Coordinator drives incremental reindexing. Per-file work is serialized by
// (repo, path) so concurrent notifications for the same file apply in order;
// distinct files index in parallel.
type Coordinator struct {
	store    store.Store
	embedder embed.Embedder
	registry *lang.Registry
	builder  *chunk.Builder
	locks    *keyedLocks
	logger   *slog.Logger
	workers  int
}

// NewCoordinator creates a coordinator with the default registry and chunk
// size band.
func NewCoordinator(s store.Store, e embed.Embedder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    s,
		embedder: e,
		registry: lang.DefaultRegistry(),
		builder:  chunk.NewBuilder(chunk.DefaultConfig()),
		locks:    newKeyedLocks(),
		logger:   logger,
		workers:  runtime.NumCPU(),
	}
}

// NotifyChanged reindexes the named paths of one repository. An empty path
// list means the whole repository changed and triggers a full rescan.
// commitHash, when non-empty, records commit provenance for the written
// versions and advances the repository's current-commit pointer.
func (c *Coordinator) NotifyChanged(ctx context.Context, repoID string, paths []string, commitHash string) (Stats, error) {
	if len(paths) == 0 {
		return c.Rescan(ctx, repoID, commitHash)
	}

	repo, ok, err := c.store.GetRepo(ctx, repoID)
	if err != nil {
		return Stats{}, err
	}
	if !ok {
		return Stats{}, fmt.Errorf("unknown repository %q", repoID)
	}

	commit := c.commitRecord(ctx, &repo, commitHash)

	var indexed, skipped, failed, chunks atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, relPath := range paths {
		g.Go(func() error {
			absPath := filepath.Join(repo.RootPath, filepath.FromSlash(relPath))
			if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
				// Deleted file: older versions stay queryable.
				c.logger.Debug("notified path no longer exists", "repo", repo.ID, "path", relPath)
				skipped.Add(1)
				return nil
			}
			n, wrote, err := c.indexPath(gctx, repo, absPath, relPath, commit)
			switch {
			case err != nil:
				failed.Add(1)
				c.logger.Warn("reindex failed", "repo", repo.ID, "path", relPath, "error", err)
			case wrote:
				indexed.Add(1)
				chunks.Add(int64(n))
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	return Stats{
		FilesTotal:   len(paths),
		FilesIndexed: int(indexed.Load()),
		FilesSkipped: int(skipped.Load()),
		FilesFailed:  int(failed.Load()),
		ChunksTotal:  int(chunks.Load()),
	}, nil
}

// Rescan walks the repository root and reindexes every discoverable file.
func (c *Coordinator) Rescan(ctx context.Context, repoID string, commitHash string) (Stats, error) {
	repo, ok, err := c.store.GetRepo(ctx, repoID)
	if err != nil {
		return Stats{}, err
	}
	if !ok {
		return Stats{}, fmt.Errorf("unknown repository %q", repoID)
	}

	if err := c.checkEmbeddingModel(ctx, repo.ID); err != nil {
		return Stats{}, err
	}

	commit := c.commitRecord(ctx, &repo, commitHash)

	files, wstats, err := walker.Walk(repo.RootPath, c.registry)
	if err != nil {
		return Stats{}, fmt.Errorf("walk %s: %w", repo.RootPath, err)
	}
	c.logger.Debug("walk complete", "repo", repo.ID, "files", wstats.Matched,
		"skipped_dirs", wstats.SkippedDirs, "oversized", wstats.Oversized)

	var indexed, skipped, failed, chunks atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, fi := range files {
		g.Go(func() error {
			n, wrote, err := c.indexPath(gctx, repo, fi.AbsPath, fi.RelPath, commit)
			switch {
			case err != nil:
				failed.Add(1)
				c.logger.Warn("reindex failed", "repo", repo.ID, "path", fi.RelPath, "error", err)
			case wrote:
				indexed.Add(1)
				chunks.Add(int64(n))
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	return Stats{
		FilesTotal:   len(files),
		FilesIndexed: int(indexed.Load()),
		FilesSkipped: int(skipped.Load()),
		FilesFailed:  int(failed.Load()),
		ChunksTotal:  int(chunks.Load()),
	}, nil
}

// commitRecord builds the provenance record for this run and advances the
// repo's current-commit pointer.
func (c *Coordinator) commitRecord(ctx context.Context, repo *store.Repository, commitHash string) *store.CommitFileVersion {
	if commitHash == "" {
		return nil
	}
	if repo.CurrentCommit != commitHash {
		repo.CurrentCommit = commitHash
		if err := c.store.UpsertRepo(ctx, *repo); err != nil {
			c.logger.Warn("failed to advance current commit", "repo", repo.ID, "error", err)
		}
	}
	return &store.CommitFileVersion{CommitHash: commitHash, CommittedAt: time.Now().UTC()}
}

// checkEmbeddingModel wipes the repository's index when the configured
// embedding model changed, since vectors from different models are not
// comparable.
func (c *Coordinator) checkEmbeddingModel(ctx context.Context, repoID string) error {
	if c.embedder == nil {
		return nil
	}
	current := c.embedder.Model()
	stored, err := c.store.GetMeta(ctx, metaEmbeddingModel)
	if err != nil {
		return err
	}
	if stored != "" && stored != current {
		c.logger.Warn("embedding model changed, reindexing from scratch",
			"repo", repoID, "old", stored, "new", current)
		if err := c.store.DeleteRepoData(ctx, repoID); err != nil {
			return err
		}
	}
	return c.store.SetMeta(ctx, metaEmbeddingModel, current)
}

// indexPath indexes one file. Returns the chunk count and whether a new
// version was written; an unchanged content hash writes nothing beyond
// optional commit provenance.
func (c *Coordinator) indexPath(ctx context.Context, repo store.Repository, absPath, relPath string, commit *store.CommitFileVersion) (int, bool, error) {
	unlock := c.locks.lock(repo.ID + "\x00" + relPath)
	defer unlock()

	src, err := os.ReadFile(absPath)
	if err != nil {
		return 0, false, err
	}
	sum := sha256.Sum256(src)
	hash := hex.EncodeToString(sum[:])

	latest, ok, err := c.store.LatestFileVersion(ctx, repo.ID, relPath)
	if err != nil {
		return 0, false, err
	}
	if ok && latest.ContentHash == hash {
		if commit != nil {
			if err := c.store.AttachCommit(ctx, latest.ID, commit.CommitHash, commit.CommittedAt); err != nil {
				return 0, false, err
			}
		}
		return 0, false, nil
	}

	items, fileRefs, language := c.parse(relPath, src)
	chunks := c.builder.Build(language, src, items)
	extraction := refs.Extract(items, fileRefs, chunks)

	vectors := c.embedChunks(ctx, chunks)

	batch := store.WriteBatch{
		Version: store.FileVersion{
			RepoID:      repo.ID,
			FilePath:    relPath,
			ContentHash: hash,
			Language:    language,
		},
		Commit:      commit,
		Chunks:      make([]store.Chunk, len(chunks)),
		Vectors:     vectors,
		Definitions: extraction.Definitions,
		References:  extraction.References,
	}
	for i, ch := range chunks {
		batch.Chunks[i] = store.Chunk{
			Name:       ch.Name,
			DeclType:   ch.Kind,
			Language:   ch.Language,
			StartLine:  ch.StartLine,
			EndLine:    ch.EndLine,
			Content:    ch.Content,
			RefSymbols: extraction.RefSymbols[i],
		}
	}

	if err := c.writeWithRetry(ctx, batch); err != nil {
		return 0, false, err
	}
	return len(chunks), true, nil
}

// parse runs the registered producer for the path, falling back to the
// fixed-window splitter when no producer matches or parsing fails.
func (c *Coordinator) parse(relPath string, src []byte) ([]lang.Item, []lang.Ref, string) {
	producer, language, _, ok := c.registry.Lookup(relPath)
	if !ok {
		producer, language = c.registry.Fallback(relPath)
	}

	items, err := producer.Items(relPath, src)
	if err != nil {
		c.logger.Warn("parse failed, using window fallback", "path", relPath, "error", err)
		fallback, fallbackLang := c.registry.Fallback(relPath)
		items, _ = fallback.Items(relPath, src)
		return items, nil, fallbackLang
	}

	fileRefs, err := producer.References(relPath, src)
	if err != nil {
		c.logger.Warn("reference extraction failed", "path", relPath, "error", err)
		fileRefs = nil
	}
	return items, fileRefs, language
}

// embedChunks embeds chunk contents. On persistent embedding failure the
// file is stored lexical-only rather than dropped.
func (c *Coordinator) embedChunks(ctx context.Context, chunks []chunk.Chunk) [][]float32 {
	if c.embedder == nil || len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		c.logger.Warn("embedding failed, storing lexical-only", "chunks", len(chunks), "error", err)
		return nil
	}
	return vectors
}

// writeWithRetry writes the batch, retrying with backoff while the store is
// unavailable. The previous version stays authoritative until this succeeds.
func (c *Coordinator) writeWithRetry(ctx context.Context, batch store.WriteBatch) error {
	var lastErr error
	delay := writeBaseDelay
	for attempt := 0; attempt < writeRetries; attempt++ {
		if _, err := c.store.WriteFileIndex(ctx, batch); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < writeRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return fmt.Errorf("write file index: %w", lastErr)
}
