package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"quarry/internal/embed"
	"quarry/internal/reindex"
	"quarry/internal/store"
)

var flagIndexCommit string

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Register a repository and index its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		dbPath := flagDB
		if dbPath == "" {
			dbPath = filepath.Join(root, ".quarry", "index.db")
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}

		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer st.Close()

		ctx := cmd.Context()
		repo, err := ensureRepo(ctx, st, root)
		if err != nil {
			return err
		}

		emb := embed.NewOllamaEmbedder(flagOllama, flagModel)
		coord := reindex.NewCoordinator(st, emb, nil)

		fmt.Printf("Indexing %s (repo %s)...\n", root, repo.ID)
		start := time.Now()

		stats, err := coord.Rescan(ctx, repo.ID, flagIndexCommit)
		elapsed := time.Since(start)
		if err != nil {
			return err
		}

		fmt.Printf("\nDone in %s\n", elapsed.Round(time.Millisecond))
		fmt.Printf("  Files:   %d total, %d indexed, %d skipped, %d failed\n",
			stats.FilesTotal, stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed)
		fmt.Printf("  Chunks:  %d\n", stats.ChunksTotal)
		return nil
	},
}

// ensureRepo returns the repository registered at root, creating it on first
// sight.
func ensureRepo(ctx context.Context, st store.Store, root string) (store.Repository, error) {
	repo, ok, err := st.RepoByRoot(ctx, root)
	if err != nil {
		return store.Repository{}, err
	}
	if ok {
		return repo, nil
	}
	repo = store.Repository{
		ID:       uuid.NewString(),
		Name:     filepath.Base(root),
		RootPath: root,
	}
	if err := st.UpsertRepo(ctx, repo); err != nil {
		return store.Repository{}, err
	}
	return repo, nil
}

func init() {
	indexCmd.Flags().StringVar(&flagIndexCommit, "commit", "", "commit hash to record as provenance")
	rootCmd.AddCommand(indexCmd)
}
