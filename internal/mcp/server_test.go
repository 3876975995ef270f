package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"repoquery/internal/chunker"
	"repoquery/internal/db"
	"repoquery/internal/ingest"
	"repoquery/internal/llm"
	"repoquery/internal/rag"
	"repoquery/internal/vectordb"
)

// mockStore implements vectordb.VectorStore for testing.
type mockStore struct {
	results map[string][]vectordb.SearchResult // keyed by repo ID
}

func (m *mockStore) Upsert(_ context.Context, _ string, _ []chunker.Chunk) error { return nil }

func (m *mockStore) Query(_ context.Context, repoID, _ string, limit int) ([]vectordb.SearchResult, error) {
	results := m.results[repoID]
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

func (m *mockStore) DeleteByFilePath(_ context.Context, _, _ string) error { return nil }
func (m *mockStore) DeleteRepository(_ context.Context, _ string) error    { return nil }
func (m *mockStore) ListRepositories(_ context.Context) ([]string, error)  { return nil, nil }
func (m *mockStore) Count(repoID string) int                               { return len(m.results[repoID]) }
func (m *mockStore) Persist(_ context.Context, _ string) error             { return nil }
func (m *mockStore) Load(_ context.Context, _ string) error                { return nil }

type mockProvider struct {
	answer string
}

func (p *mockProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if req.JSONMode {
		return &llm.CompletionResponse{Content: `{"subquestions": []}`}, nil
	}
	return &llm.CompletionResponse{Content: p.answer}, nil
}

func (p *mockProvider) Name() string { return "mock" }

func codeResult(id, path string, start, end int, text string) vectordb.SearchResult {
	return vectordb.SearchResult{
		Chunk: chunker.Chunk{
			ID:   id,
			Text: text,
			Metadata: chunker.Metadata{
				FilePath:  path,
				StartLine: start,
				EndLine:   end,
				Language:  "go",
				Kind:      chunker.KindFunction,
			},
		},
		Score: 0.9,
	}
}

func newTestServer(t *testing.T, store *mockStore, provider llm.Provider) (*Server, *ingest.Catalog) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	catalog := ingest.NewCatalog(database)
	return NewServer(store, provider, catalog, rag.Options{}), catalog
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		tool     mcp.Tool
		wantName string
	}{
		{"search_code", searchCodeTool, "search_code"},
		{"ask_codebase", askCodebaseTool, "ask_codebase"},
		{"list_repositories", listRepositoriesTool, "list_repositories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestHandleSearchCode(t *testing.T) {
	store := &mockStore{results: map[string][]vectordb.SearchResult{
		"demo": {codeResult("c1", "main.go", 1, 10, "func main() {}")},
	}}
	srv, _ := newTestServer(t, store, &mockProvider{})
	ctx := context.Background()

	t.Run("basic search", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"repository": "demo",
			"query":      "entry point",
		}

		result, err := srv.handleSearchCode(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		text := resultText(t, result)
		if !strings.Contains(text, "main.go:1-10") {
			t.Errorf("result missing location: %s", text)
		}
	})

	t.Run("missing repository", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"query": "anything"}

		result, err := srv.handleSearchCode(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing repository")
		}
	})

	t.Run("empty index", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"repository": "empty",
			"query":      "anything",
		}

		result, err := srv.handleSearchCode(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Error("empty results should not be an error")
		}
	})
}

func TestHandleAskCodebase(t *testing.T) {
	store := &mockStore{results: map[string][]vectordb.SearchResult{
		"demo": {codeResult("c1", "main.go", 1, 10, "func main() {}")},
	}}
	provider := &mockProvider{answer: "main starts the server [FILE: main.go, LINES: 1-10]"}
	srv, _ := newTestServer(t, store, provider)
	ctx := context.Background()

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{
		"repository": "demo",
		"question":   "what does main do?",
		"mode":       "single-pass",
	}

	result, err := srv.handleAskCodebase(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "main starts the server") {
		t.Errorf("result missing answer: %s", text)
	}
	if !strings.Contains(text, "Sources:") || !strings.Contains(text, "main.go:1-10") {
		t.Errorf("result missing sources: %s", text)
	}
}

func TestHandleListRepositories(t *testing.T) {
	srv, catalog := newTestServer(t, &mockStore{}, &mockProvider{})
	ctx := context.Background()

	t.Run("empty catalog", func(t *testing.T) {
		result, err := srv.handleListRepositories(ctx, mcp.CallToolRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		if !strings.Contains(resultText(t, result), "No repositories") {
			t.Error("expected empty catalog message")
		}
	})

	t.Run("lists entries", func(t *testing.T) {
		if err := catalog.Register(ctx, "demo", "/src/demo"); err != nil {
			t.Fatal(err)
		}

		result, err := srv.handleListRepositories(ctx, mcp.CallToolRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		text := resultText(t, result)
		if !strings.Contains(text, "demo") || !strings.Contains(text, "/src/demo") {
			t.Errorf("result missing repository: %s", text)
		}
	})
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
