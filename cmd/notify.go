package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"quarry/internal/embed"
	"quarry/internal/reindex"
)

var flagNotifyCommit string

var notifyCmd = &cobra.Command{
	Use:   "notify <repo> [paths...]",
	Short: "Reindex changed files of a repository",
	Long:  "Reindex the named paths of a repository. With no paths the whole repository is rescanned.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		repo, err := resolveRepo(ctx, st, args[0])
		if err != nil {
			return err
		}

		emb := embed.NewOllamaEmbedder(flagOllama, flagModel)
		coord := reindex.NewCoordinator(st, emb, nil)

		stats, err := coord.NotifyChanged(ctx, repo.ID, args[1:], flagNotifyCommit)
		if err != nil {
			return err
		}
		fmt.Printf("Files: %d total, %d indexed, %d skipped, %d failed; %d chunks\n",
			stats.FilesTotal, stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed, stats.ChunksTotal)
		return nil
	},
}

func init() {
	notifyCmd.Flags().StringVar(&flagNotifyCommit, "commit", "", "commit hash to record as provenance")
	rootCmd.AddCommand(notifyCmd)
}
