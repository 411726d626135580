package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"quarry/internal/embed"
	"quarry/internal/refs"
	"quarry/internal/retrieve"
	"quarry/internal/store"
)

var (
	flagQueryRepos  []string
	flagQueryPins   []string
	flagQueryK      int
	flagQueryLength int
	flagBoostFiles  []string
	flagBoostDecls  []string
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Query the index and assemble a budgeted context response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		scope, err := buildScope(ctx, st, flagQueryRepos, flagQueryPins)
		if err != nil {
			return err
		}

		emb := embed.NewOllamaEmbedder(flagOllama, flagModel)
		engine := retrieve.NewEngine(st, emb, refs.NewResolver(st), nil)

		req := retrieve.Request{
			Query:        strings.Join(args, " "),
			Scope:        scope,
			K:            flagQueryK,
			ApproxLength: flagQueryLength,
		}
		for _, path := range flagBoostFiles {
			for _, repoID := range scope.RepoIDs {
				req.Boosts.Files = append(req.Boosts.Files, retrieve.FileDirective{RepoID: repoID, Path: path})
			}
		}
		for _, ident := range flagBoostDecls {
			req.Boosts.Declarations = append(req.Boosts.Declarations, retrieve.DeclDirective{Identifier: ident})
		}

		result, err := engine.Query(ctx, req)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

func printResult(result retrieve.Result) {
	if result.Degraded {
		fmt.Println("(degraded result: part of the pipeline failed)")
	}
	for _, file := range result.Files {
		fmt.Printf("=== %s ===\n", file.FilePath)
		for _, c := range file.Chunks {
			header := fmt.Sprintf("lines %d-%d", c.StartLine, c.EndLine)
			if c.Name != "" {
				header = fmt.Sprintf("%s (%s %s)", header, c.DeclType, c.Name)
			}
			fmt.Printf("--- %s ---\n%s\n", header, c.Content)
		}
		fmt.Println()
	}
	fmt.Printf("[%d/%d characters used]\n", result.Used, result.Budget)
}

// openStore opens the database named by --db, defaulting to the working
// directory's .quarry/index.db.
func openStore() (store.Store, error) {
	dbPath := flagDB
	if dbPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(wd, ".quarry", "index.db")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("index not found at %s\nRun 'quarry index <path>' first to build the index", dbPath)
	}
	return store.Open(dbPath)
}

// buildScope resolves repo arguments (IDs or checkout roots) into a query
// scope, with optional repo=commit pins. No repo arguments means the repo
// registered at the working directory.
func buildScope(ctx context.Context, st store.Store, repoArgs, pinArgs []string) (store.Scope, error) {
	var scope store.Scope

	if len(repoArgs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return scope, err
		}
		repoArgs = []string{wd}
	}

	for _, arg := range repoArgs {
		repo, err := resolveRepo(ctx, st, arg)
		if err != nil {
			return scope, err
		}
		scope.RepoIDs = append(scope.RepoIDs, repo.ID)
	}

	for _, pin := range pinArgs {
		repoArg, commit, ok := strings.Cut(pin, "=")
		if !ok {
			return scope, fmt.Errorf("invalid --pin %q, expected repo=commit", pin)
		}
		repo, err := resolveRepo(ctx, st, repoArg)
		if err != nil {
			return scope, err
		}
		if scope.CommitPins == nil {
			scope.CommitPins = make(map[string]string)
		}
		scope.CommitPins[repo.ID] = commit
	}
	return scope, nil
}

// resolveRepo accepts a repository ID or a checkout root path.
func resolveRepo(ctx context.Context, st store.Store, arg string) (store.Repository, error) {
	if repo, ok, err := st.GetRepo(ctx, arg); err != nil {
		return store.Repository{}, err
	} else if ok {
		return repo, nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return store.Repository{}, err
	}
	repo, ok, err := st.RepoByRoot(ctx, abs)
	if err != nil {
		return store.Repository{}, err
	}
	if !ok {
		return store.Repository{}, fmt.Errorf("unknown repository %q", arg)
	}
	return repo, nil
}

func init() {
	queryCmd.Flags().StringSliceVar(&flagQueryRepos, "repo", nil, "repository ID or root path to search (repeatable)")
	queryCmd.Flags().StringSliceVar(&flagQueryPins, "pin", nil, "pin a repository to a commit, repo=commit (repeatable)")
	queryCmd.Flags().IntVarP(&flagQueryK, "k", "k", 10, "retrieval candidate count")
	queryCmd.Flags().IntVar(&flagQueryLength, "length", 16000, "approximate character budget")
	queryCmd.Flags().StringSliceVar(&flagBoostFiles, "boost-file", nil, "force-include every chunk of this file (repeatable)")
	queryCmd.Flags().StringSliceVar(&flagBoostDecls, "boost-decl", nil, "force-include the chunk defining this identifier (repeatable)")
	rootCmd.AddCommand(queryCmd)
}
