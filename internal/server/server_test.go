package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"repoquery/internal/chunker"
	"repoquery/internal/db"
	"repoquery/internal/ingest"
	"repoquery/internal/llm"
	"repoquery/internal/session"
	"repoquery/internal/vectordb"
)

type stubStore struct {
	results  []vectordb.SearchResult
	chunks   map[string]int
	deleted  []string
	persists int
}

func newStubStore() *stubStore {
	return &stubStore{chunks: make(map[string]int)}
}

func (s *stubStore) Upsert(_ context.Context, repoID string, chunks []chunker.Chunk) error {
	s.chunks[repoID] += len(chunks)
	return nil
}

func (s *stubStore) Query(_ context.Context, repoID, _ string, _ int) ([]vectordb.SearchResult, error) {
	return s.results, nil
}

func (s *stubStore) DeleteByFilePath(_ context.Context, _, _ string) error { return nil }

func (s *stubStore) DeleteRepository(_ context.Context, repoID string) error {
	s.deleted = append(s.deleted, repoID)
	delete(s.chunks, repoID)
	return nil
}

func (s *stubStore) ListRepositories(_ context.Context) ([]string, error) { return nil, nil }

func (s *stubStore) Count(repoID string) int { return s.chunks[repoID] }

func (s *stubStore) Persist(_ context.Context, _ string) error {
	s.persists++
	return nil
}

func (s *stubStore) Load(_ context.Context, _ string) error { return nil }

type stubProvider struct {
	answer string
}

func (p *stubProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if req.JSONMode {
		return &llm.CompletionResponse{Content: `{"subquestions": []}`}, nil
	}
	return &llm.CompletionResponse{Content: p.answer}, nil
}

func (p *stubProvider) Name() string { return "stub" }

type testEnv struct {
	srv      *Server
	store    *stubStore
	catalog  *ingest.Catalog
	jobs     *ingest.JobManager
	sessions *session.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := newStubStore()
	catalog := ingest.NewCatalog(database)
	pipeline := ingest.NewPipeline(store, chunker.NewRegistry(), ingest.Config{})
	jobs := ingest.NewJobManager(database, pipeline, catalog, store, t.TempDir())
	sessions := session.NewStore(database)
	provider := &stubProvider{answer: "plain answer"}

	cfg := Config{Port: 0, AllowAll: true, HistoryTurns: 10}
	srv := New(cfg, catalog, jobs, sessions, store, provider)
	return &testEnv{srv: srv, store: store, catalog: catalog, jobs: jobs, sessions: sessions}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok"}` {
		t.Errorf("body = %q", got)
	}
}

func TestCORSAllowAll(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestIngestRepoAndPollJob(t *testing.T) {
	env := newTestEnv(t)

	root := t.TempDir()
	src := "package demo\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n"
	if err := os.WriteFile(filepath.Join(root, "demo.go"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := env.do(http.MethodPost, "/api/repos", ingestRequest{ID: "demo", RootDir: root})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var job ingest.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ID == "" || job.RepoID != "demo" {
		t.Fatalf("unexpected job: %+v", job)
	}

	env.jobs.Wait()

	rec = env.do(http.MethodGet, "/api/jobs/"+job.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var done ingest.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &done); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if done.Status != ingest.JobSucceeded {
		t.Errorf("status = %s, want %s (error: %s)", done.Status, ingest.JobSucceeded, done.Error)
	}
	if done.FilesTotal != 1 || done.ChunkCount == 0 {
		t.Errorf("files = %d chunks = %d", done.FilesTotal, done.ChunkCount)
	}
	if env.store.persists != 1 {
		t.Errorf("persists = %d, want 1", env.store.persists)
	}

	rec = env.do(http.MethodGet, "/api/repos", nil)
	var repos []ingest.Repository
	if err := json.Unmarshal(rec.Body.Bytes(), &repos); err != nil {
		t.Fatalf("decode repos: %v", err)
	}
	if len(repos) != 1 || repos[0].ID != "demo" {
		t.Errorf("repos = %+v", repos)
	}
}

func TestIngestRepoRequiresRootDir(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/repos", ingestRequest{ID: "demo"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetJobMissing(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/jobs/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestQueryUnknownRepo(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/query", queryRequest{RepoID: "ghost", Question: "what?"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d: %s", rec.Code, http.StatusNotFound, rec.Body.String())
	}
}

func TestQueryInvalidMode(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/query",
		queryRequest{RepoID: "demo", Question: "what?", Mode: "triple-pass"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestQueryWithSessionRecordsTurns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.catalog.Register(ctx, "demo", "/tmp/demo"); err != nil {
		t.Fatal(err)
	}
	env.store.results = []vectordb.SearchResult{{
		Chunk: chunker.Chunk{
			ID:   "c1",
			Text: "func Hello() {}",
			Metadata: chunker.Metadata{
				RepoID: "demo", FilePath: "demo.go",
				StartLine: 3, EndLine: 5,
				Language: "go", Kind: chunker.KindFunction, QualifiedName: "Hello",
			},
		},
		Score: 0.9,
	}}

	sess, err := env.sessions.Create(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}

	rec := env.do(http.MethodPost, "/api/query",
		queryRequest{RepoID: "demo", Question: "what does Hello do?", SessionID: sess.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID != sess.ID {
		t.Errorf("session_id = %q, want %q", resp.SessionID, sess.ID)
	}
	if resp.Text != "plain answer" {
		t.Errorf("answer = %q", resp.Text)
	}

	turns, err := env.sessions.History(ctx, sess.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Role != session.RoleUser || turns[1].Role != session.RoleAssistant {
		t.Errorf("roles = %s, %s", turns[0].Role, turns[1].Role)
	}
}

func TestQueryUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.catalog.Register(ctx, "demo", "/tmp/demo"); err != nil {
		t.Fatal(err)
	}

	rec := env.do(http.MethodPost, "/api/query",
		queryRequest{RepoID: "demo", Question: "what?", SessionID: "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeleteRepo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.catalog.Register(ctx, "demo", "/tmp/demo"); err != nil {
		t.Fatal(err)
	}

	rec := env.do(http.MethodDelete, "/api/repos/demo", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(env.store.deleted) != 1 || env.store.deleted[0] != "demo" {
		t.Errorf("deleted = %v", env.store.deleted)
	}

	rec = env.do(http.MethodDelete, "/api/repos/demo", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestChatWebSocket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.catalog.Register(ctx, "demo", "/tmp/demo"); err != nil {
		t.Fatal(err)
	}
	env.store.results = []vectordb.SearchResult{{
		Chunk: chunker.Chunk{
			ID:   "c1",
			Text: "func Hello() {}",
			Metadata: chunker.Metadata{
				RepoID: "demo", FilePath: "demo.go",
				StartLine: 1, EndLine: 3,
				Language: "go", Kind: chunker.KindFunction,
			},
		},
		Score: 0.9,
	}}

	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(chatRequest{Type: "ask", RepoID: "demo", Content: "what is Hello?"}); err != nil {
		t.Fatal(err)
	}
	var resp chatResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != "answer" {
		t.Fatalf("type = %q (content: %s)", resp.Type, resp.Content)
	}
	if resp.SessionID == "" {
		t.Error("expected a session to be created")
	}
	if resp.Content != "plain answer" {
		t.Errorf("content = %q", resp.Content)
	}

	// Second message on the same session reuses it.
	if err := conn.WriteJSON(chatRequest{Type: "ask", RepoID: "demo", SessionID: resp.SessionID, Content: "and then?"}); err != nil {
		t.Fatal(err)
	}
	var second chatResponse
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if second.SessionID != resp.SessionID {
		t.Errorf("session_id = %q, want %q", second.SessionID, resp.SessionID)
	}

	turns, err := env.sessions.History(ctx, resp.SessionID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 4 {
		t.Errorf("turns = %d, want 4", len(turns))
	}
}

func TestChatWebSocketRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)

	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/chat", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(chatRequest{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	var resp chatResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != "error" {
		t.Errorf("type = %q, want error", resp.Type)
	}
}
