package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
	"github.com/Anudeepsrib/ClinIQ/internal/infrastructure/resilience"
)

func TestEmbedSendsBatchAndReturnsVectors(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen-model", "embed-model", Options{}))
	vectors, err := embedder.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 || len(vectors[0]) != 2 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if captured["model"] != "embed-model" {
		t.Fatalf("wrong model in request: %v", captured["model"])
	}
	inputs, ok := captured["input"].([]any)
	if !ok || len(inputs) != 2 {
		t.Fatalf("expected batched input, got %v", captured["input"])
	}
}

func TestEmbedEmptyInputSkipsCall(t *testing.T) {
	embedder := NewEmbedder(New("http://unreachable.invalid", "g", "e", Options{}))
	vectors, err := embedder.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Fatalf("empty input must be a no-op, got %v / %v", vectors, err)
	}
}

func TestCompleteSendsTemperatureAndTrims(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "  the answer \n"})
	}))
	defer server.Close()

	inferencer := NewInferencer(New(server.URL, "gen-model", "embed-model", Options{}))
	out, err := inferencer.Complete(context.Background(), "prompt", 0.4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "the answer" {
		t.Fatalf("response must be trimmed, got %q", out)
	}
	options, ok := captured["options"].(map[string]any)
	if !ok || options["temperature"] != 0.4 {
		t.Fatalf("temperature not forwarded: %v", captured["options"])
	}
	if _, hasFormat := captured["format"]; hasFormat {
		t.Fatalf("plain completion must not force json format")
	}
}

func TestCompleteJSONSetsFormat(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"binary_score":"yes"}`})
	}))
	defer server.Close()

	inferencer := NewInferencer(New(server.URL, "gen-model", "embed-model", Options{}))
	out, err := inferencer.CompleteJSON(context.Background(), "prompt", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"binary_score":"yes"}` {
		t.Fatalf("unexpected response: %q", out)
	}
	if captured["format"] != "json" {
		t.Fatalf("json completion must request format=json, got %v", captured["format"])
	}
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	inferencer := NewInferencer(New(server.URL, "gen-model", "embed-model", Options{}))
	_, err := inferencer.Complete(context.Background(), "prompt", 0)
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected http status error, got %v", err)
	}
}

func TestExecutorWrapsRetryableFailuresAsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	policy := resilience.DefaultConfig()
	policy.RetryMaxAttempts = 1
	policy.BreakerEnabled = false
	client := New(server.URL, "gen-model", "embed-model", Options{
		Executor: resilience.NewExecutor(policy),
	})

	_, err := NewInferencer(client).Complete(context.Background(), "prompt", 0)
	if err == nil {
		t.Fatalf("expected error for 503 response")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("retryable failure must surface as temporary, got %v", err)
	}
}
