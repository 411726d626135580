package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"quarry/internal/embed"
	"quarry/internal/refs"
	"quarry/internal/reindex"
	"quarry/internal/retrieve"
	"quarry/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing index and retrieval tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	emb := embed.NewOllamaEmbedder(flagOllama, flagModel)
	engine := retrieve.NewEngine(st, emb, refs.NewResolver(st), nil)
	coord := reindex.NewCoordinator(st, emb, nil)

	s := mcpserver.NewMCPServer("quarry", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(searchContextTool(), makeSearchContextHandler(st, engine))
	s.AddTool(notifyChangedTool(), makeNotifyChangedHandler(st, coord, engine))
	s.AddTool(rescanRepoTool(), makeRescanHandler(st, coord, engine))
	s.AddTool(listIndexedFilesTool(), makeListFilesHandler(st))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchContextTool() mcp.Tool {
	return mcp.NewTool("search_context",
		mcp.WithDescription("Retrieve a budgeted context bundle for a query: hybrid search, reference-graph expansion, and per-file assembly under a character budget."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or keyword query"),
		),
		mcp.WithString("repo",
			mcp.Description("Repository ID or root path to search (default: repo at the working directory)"),
		),
		mcp.WithString("pin",
			mcp.Description("Commit hash pinning the repository to a historical version"),
		),
		mcp.WithNumber("k",
			mcp.Description("Retrieval candidate count (default 10)"),
		),
		mcp.WithNumber("length",
			mcp.Description("Approximate character budget for the response (default 16000)"),
		),
		mcp.WithString("boost_files",
			mcp.Description("Comma-separated file paths to force-include in full"),
		),
		mcp.WithString("boost_decls",
			mcp.Description("Comma-separated declaration identifiers to force-include"),
		),
	)
}

func notifyChangedTool() mcp.Tool {
	return mcp.NewTool("notify_changed",
		mcp.WithDescription("Reindex the named files of a repository after they changed. Older versions stay queryable at their commits."),
		mcp.WithString("repo",
			mcp.Required(),
			mcp.Description("Repository ID or root path"),
		),
		mcp.WithString("paths",
			mcp.Required(),
			mcp.Description("Comma-separated repo-relative file paths"),
		),
		mcp.WithString("commit",
			mcp.Description("Commit hash to record as provenance"),
		),
	)
}

func rescanRepoTool() mcp.Tool {
	return mcp.NewTool("rescan_repo",
		mcp.WithDescription("Walk a repository root and reindex every changed file."),
		mcp.WithString("repo",
			mcp.Required(),
			mcp.Description("Repository ID or root path"),
		),
		mcp.WithString("commit",
			mcp.Description("Commit hash to record as provenance"),
		),
	)
}

func listIndexedFilesTool() mcp.Tool {
	return mcp.NewTool("list_indexed_files",
		mcp.WithDescription("List a repository's indexed files with language and chunk count."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("repo",
			mcp.Required(),
			mcp.Description("Repository ID or root path"),
		),
		mcp.WithString("language",
			mcp.Description("Optional language filter (e.g. 'go', 'python'). Case-insensitive."),
		),
	)
}

// --- Handler factories ---

func makeSearchContextHandler(st store.Store, engine *retrieve.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		var repoArgs []string
		if repoArg := req.GetString("repo", ""); repoArg != "" {
			repoArgs = []string{repoArg}
		}
		var pins []string
		if pin := req.GetString("pin", ""); pin != "" {
			if len(repoArgs) == 0 {
				return mcp.NewToolResultError("pin requires repo"), nil
			}
			pins = []string{repoArgs[0] + "=" + pin}
		}
		scope, err := buildScope(ctx, st, repoArgs, pins)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		request := retrieve.Request{
			Query:        query,
			Scope:        scope,
			K:            req.GetInt("k", 10),
			ApproxLength: req.GetInt("length", 16000),
		}
		for _, path := range splitList(req.GetString("boost_files", "")) {
			for _, repoID := range scope.RepoIDs {
				request.Boosts.Files = append(request.Boosts.Files, retrieve.FileDirective{RepoID: repoID, Path: path})
			}
		}
		for _, ident := range splitList(req.GetString("boost_decls", "")) {
			request.Boosts.Declarations = append(request.Boosts.Declarations, retrieve.DeclDirective{Identifier: ident})
		}

		result, err := engine.Query(ctx, request)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatResult(query, result)), nil
	}
}

func makeNotifyChangedHandler(st store.Store, coord *reindex.Coordinator, engine *retrieve.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repoArg := req.GetString("repo", "")
		if repoArg == "" {
			return mcp.NewToolResultError("repo is required"), nil
		}
		paths := splitList(req.GetString("paths", ""))
		if len(paths) == 0 {
			return mcp.NewToolResultError("paths is required"), nil
		}

		repo, err := resolveRepo(ctx, st, repoArg)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		stats, err := coord.NotifyChanged(ctx, repo.ID, paths, req.GetString("commit", ""))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reindex failed: %v", err)), nil
		}
		engine.InvalidateCache()
		return mcp.NewToolResultText(formatStats(stats)), nil
	}
}

func makeRescanHandler(st store.Store, coord *reindex.Coordinator, engine *retrieve.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repoArg := req.GetString("repo", "")
		if repoArg == "" {
			return mcp.NewToolResultError("repo is required"), nil
		}
		repo, err := resolveRepo(ctx, st, repoArg)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		stats, err := coord.Rescan(ctx, repo.ID, req.GetString("commit", ""))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("rescan failed: %v", err)), nil
		}
		engine.InvalidateCache()
		return mcp.NewToolResultText(formatStats(stats)), nil
	}
}

func makeListFilesHandler(st store.Store) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repoArg := req.GetString("repo", "")
		if repoArg == "" {
			return mcp.NewToolResultError("repo is required"), nil
		}
		repo, err := resolveRepo(ctx, st, repoArg)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		langFilter := strings.ToLower(req.GetString("language", ""))
		files, err := st.ListFiles(ctx, repo.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list files failed: %v", err)), nil
		}

		var sb strings.Builder
		count := 0
		for _, f := range files {
			if langFilter != "" && strings.ToLower(f.Language) != langFilter {
				continue
			}
			count++
			fmt.Fprintf(&sb, "- %s (%s, %d chunks)\n", f.Path, f.Language, f.Chunks)
		}
		return mcp.NewToolResultText(fmt.Sprintf("## Indexed files (%d)\n\n%s", count, sb.String())), nil
	}
}

// --- Formatting ---

func formatResult(query string, result retrieve.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Context for %q (%d/%d characters)\n\n", query, result.Used, result.Budget)
	if result.Degraded {
		sb.WriteString("_Degraded result: part of the pipeline failed._\n\n")
	}
	for _, file := range result.Files {
		fmt.Fprintf(&sb, "### %s\n\n", file.FilePath)
		for _, c := range file.Chunks {
			if c.Name != "" {
				fmt.Fprintf(&sb, "**%s %s** (lines %d-%d)\n", c.DeclType, c.Name, c.StartLine, c.EndLine)
			} else {
				fmt.Fprintf(&sb, "**lines %d-%d**\n", c.StartLine, c.EndLine)
			}
			fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", file.Language, c.Content)
		}
	}
	return sb.String()
}

func formatStats(stats reindex.Stats) string {
	return fmt.Sprintf("Files: %d total, %d indexed, %d skipped, %d failed; %d chunks",
		stats.FilesTotal, stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed, stats.ChunksTotal)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
