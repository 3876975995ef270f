package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestAnthropicProvider_Complete(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(anthropicResponse{
			Content:    []anthropicContent{{Type: "text", Text: "the answer"}},
			Model:      "claude-test",
			StopReason: "end_turn",
			Usage:      anthropicUsage{InputTokens: 10, OutputTokens: 5},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-test", srv.URL)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "question"},
		},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != "the answer" {
		t.Errorf("content: got %q", resp.Content)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 5 {
		t.Errorf("usage: %+v", resp)
	}
	// System messages move to the dedicated field, and JSON mode adds
	// an instruction there.
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("messages: %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.System, "be helpful") || !strings.Contains(gotReq.System, "JSON") {
		t.Errorf("system prompt: %q", gotReq.System)
	}
}

func TestAnthropicProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "invalid_request_error", "message": "bad model"},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "nope", srv.URL)
	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	if err == nil || !strings.Contains(err.Error(), "bad model") {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestOllamaProvider_JSONMode(t *testing.T) {
	var gotReq ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:    ollamaMessage{Role: "assistant", Content: `{"ok":true}`},
			Model:      "llama3",
			DoneReason: "stop",
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotReq.Format != "json" {
		t.Errorf("expected json format, got %q", gotReq.Format)
	}
	if gotReq.Stream {
		t.Error("expected stream=false")
	}
	if resp.Content != `{"ok":true}` {
		t.Errorf("content: %q", resp.Content)
	}
}

type countingProvider struct {
	calls atomic.Int64
}

func (c *countingProvider) Complete(_ context.Context, _ CompletionRequest) (*CompletionResponse, error) {
	c.calls.Add(1)
	return &CompletionResponse{Content: "ok"}, nil
}

func (c *countingProvider) Name() string { return "counting" }

func TestRateLimitedProvider_BlocksWhenExhausted(t *testing.T) {
	inner := &countingProvider{}
	limited := NewRateLimitedProvider(inner, 2)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := limited.Complete(ctx, CompletionRequest{}); err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}

	// Bucket is empty; a cancelled context must abort the wait.
	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := limited.Complete(cancelCtx, CompletionRequest{}); err == nil {
		t.Error("expected context error when bucket exhausted")
	}

	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner calls: got %d, want 2", got)
	}
}

func TestNewProvider_Unsupported(t *testing.T) {
	if _, err := NewProvider("watson", "x"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNewProvider_Ollama(t *testing.T) {
	p, err := NewProvider("ollama", "llama3")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("name: %s", p.Name())
	}
}
