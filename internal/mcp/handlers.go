package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"repoquery/internal/rag"
	"repoquery/internal/vectordb"
)

// handleSearchCode performs semantic search over one repository's index.
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoID, err := request.RequireString("repository")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repository"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}

	results, err := s.store.Query(ctx, repoID, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. The repository may not be indexed yet. Run `repoquery ingest` to index it."), nil
	}

	return mcp.NewToolResultText(formatSearchResults(results)), nil
}

// handleAskCodebase runs the full retrieval and synthesis pipeline for
// one question.
func (s *Server) handleAskCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoID, err := request.RequireString("repository")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repository"), nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}

	opts := s.ragOpts
	switch request.GetString("mode", "") {
	case "single-pass":
		opts.TwoPass = false
	case "two-pass":
		opts.TwoPass = true
	}

	engine := rag.NewEngine(s.store, s.provider, opts)
	answer, err := engine.Ask(ctx, repoID, question, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatAnswer(answer)), nil
}

// handleListRepositories lists the indexed repositories from the catalog.
func (s *Server) handleListRepositories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repos, err := s.catalog.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list repositories failed: %v", err)), nil
	}
	if len(repos) == 0 {
		return mcp.NewToolResultText("No repositories are indexed yet. Run `repoquery ingest` to index one."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d repositories:\n", len(repos)))
	for _, r := range repos {
		sb.WriteString(fmt.Sprintf("\n- %s (%s)\n", r.ID, r.RootDir))
		sb.WriteString(fmt.Sprintf("  Files: %d, Chunks: %d\n", r.FileCount, r.ChunkCount))
		if r.LastIngestedAt != nil {
			sb.WriteString(fmt.Sprintf("  Last ingested: %s\n", r.LastIngestedAt.Format("2006-01-02 15:04:05")))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// formatSearchResults converts search results into a rich text format
// optimized for AI agent consumption.
func formatSearchResults(results []vectordb.SearchResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n", len(results)))

	for i, r := range results {
		md := r.Chunk.Metadata
		sb.WriteString(fmt.Sprintf("\n--- Result %d ---\n", i+1))
		sb.WriteString(fmt.Sprintf("File: %s:%d-%d\n", md.FilePath, md.StartLine, md.EndLine))
		sb.WriteString(fmt.Sprintf("Type: %s\n", md.Kind))
		if md.QualifiedName != "" {
			sb.WriteString(fmt.Sprintf("Symbol: %s\n", md.QualifiedName))
		}
		if md.Language != "" {
			sb.WriteString(fmt.Sprintf("Language: %s\n", md.Language))
		}
		sb.WriteString(fmt.Sprintf("Similarity: %.1f%%\n", r.Score*100))
		sb.WriteString("\n")
		sb.WriteString(r.Chunk.Text)
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatAnswer renders the answer plus its resolved sources.
func formatAnswer(answer *rag.Answer) string {
	var sb strings.Builder
	sb.WriteString(answer.Text)

	if len(answer.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for _, c := range answer.Sources {
			sb.WriteString(fmt.Sprintf("- %s:%d-%d\n", c.FilePath, c.StartLine, c.EndLine))
		}
	}
	if len(answer.RetrievalNotes) > 0 {
		sb.WriteString("\nRetrieval notes:\n")
		for _, n := range answer.RetrievalNotes {
			sb.WriteString(fmt.Sprintf("- %s\n", n))
		}
	}
	return sb.String()
}
