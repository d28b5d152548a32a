package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
)

func TestGenerateSendsModelAndPrompt(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "  a grounded answer  "})
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "llama3.1:8b", "nomic-embed-text", 5*time.Second))
	out, err := gen.Generate(context.Background(), "how do I treat canker?")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "a grounded answer" {
		t.Fatalf("expected trimmed response, got %q", out)
	}
	if got["model"] != "llama3.1:8b" || got["prompt"] != "how do I treat canker?" {
		t.Fatalf("unexpected request body %v", got)
	}
	if got["stream"] != false {
		t.Fatalf("expected stream disabled, got %v", got["stream"])
	}
	if _, hasFormat := got["format"]; hasFormat {
		t.Fatal("plain generation must not force JSON format")
	}
}

func TestGenerateJSONRequestsJSONFormat(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"response": `{"intent":"disease","confidence":0.9}`})
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "llama3.1:8b", "", 5*time.Second))
	out, err := gen.GenerateJSON(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("generate json: %v", err)
	}
	if got["format"] != "json" {
		t.Fatalf("expected json format flag, got %v", got["format"])
	}
	if out == "" {
		t.Fatal("expected a response")
	}
}

func TestGenerateRetriesOnServerError(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "recovered"})
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "m", "", 5*time.Second))
	out, err := gen.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if out != "recovered" || atomic.LoadInt64(&calls) != 3 {
		t.Fatalf("expected success on attempt 3, got %q after %d calls", out, calls)
	}
}

func TestGenerateDoesNotRetryClientError(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "m", "", 5*time.Second))
	_, err := gen.Generate(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrUpstreamError) {
		t.Fatalf("expected ErrUpstreamError, got %v", err)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected a single attempt for 404, got %d", calls)
	}
}

func TestEmbedQueryReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "nomic-embed-text" {
			t.Fatalf("unexpected embed model %v", req["model"])
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer server.Close()

	emb := NewEmbedder(New(server.URL, "gen", "nomic-embed-text", 5*time.Second))
	vec, err := emb.EmbedQuery(context.Background(), "citrus canker")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbedQueryEmptyResultFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	}))
	defer server.Close()

	emb := NewEmbedder(New(server.URL, "gen", "embed", 5*time.Second))
	if _, err := emb.EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatal("expected an error for an empty embedding result")
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "m", "", 5*time.Second)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	server.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail against a closed server")
	}
}
