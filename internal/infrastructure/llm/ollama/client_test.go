package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/resilience"
)

func TestGeneratorBuildsContextPromptAndReportsUsage(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"llama3","response":" ok ","prompt_eval_count":120,"eval_count":30}`))
	}))
	defer server.Close()

	page := 4
	gen := NewGenerator(New(server.URL, "gen", "embed"))
	out, err := gen.GenerateAnswer(context.Background(), "question?", []domain.RetrievedCandidate{
		{DocumentTitle: "Handbook", Text: "chunk text", PageNumber: &page},
	})
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	prompt, _ := payload["prompt"].(string)
	if !strings.Contains(prompt, "question?") || !strings.Contains(prompt, "[1] Handbook (page 4)\nchunk text") {
		t.Fatalf("unexpected prompt: %s", prompt)
	}
	if system, _ := payload["system"].(string); system == "" {
		t.Fatalf("expected system prompt")
	}
	want := domain.Generation{Text: "ok", Model: "llama3", PromptTokens: 120, CompletionTokens: 30}
	if out != want {
		t.Fatalf("unexpected generation: %+v", out)
	}
}

func TestGenerateJSONUsesDeterministicOptions(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"response":"{\"scores\":[]}"}`))
	}))
	defer server.Close()

	out, err := NewGenerator(New(server.URL, "gen", "embed")).GenerateJSONFromPrompt(context.Background(), "score these")
	if err != nil {
		t.Fatalf("GenerateJSONFromPrompt() error = %v", err)
	}
	if out != `{"scores":[]}` {
		t.Fatalf("unexpected output %q", out)
	}
	if payload["format"] != "json" {
		t.Fatalf("expected json format, got %v", payload["format"])
	}
	options, _ := payload["options"].(map[string]any)
	if options["temperature"] != float64(0) || options["seed"] != float64(jsonSeed) {
		t.Fatalf("unexpected options %v", options)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed"))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error kind, got %v", err)
	}
}

func TestEmbedRejectsMissingVectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[]]}`))
	}))
	defer server.Close()

	_, err := NewEmbedder(New(server.URL, "gen", "embed")).Embed(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "empty vector") {
		t.Fatalf("expected empty vector error, got %v", err)
	}
}

func TestEmbedBatchesLargeInputs(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var payload struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		vectors := make([][]float32, len(payload.Input))
		for i := range vectors {
			vectors[i] = []float32{1}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
	}))
	defer server.Close()

	texts := make([]string, 130)
	for i := range texts {
		texts[i] = "t"
	}
	vectors, err := NewEmbedder(New(server.URL, "gen", "embed")).Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 130 || requests.Load() != 3 {
		t.Fatalf("got %d vectors in %d requests", len(vectors), requests.Load())
	}
}

func TestExecutorRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.5]]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	vector, err := NewEmbedder(New(server.URL, "gen", "embed", WithExecutor(exec))).EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 1 || requests.Load() != 2 {
		t.Fatalf("unexpected vector %v after %d requests", vector, requests.Load())
	}
}
