package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"therapy-room-backend/internal/config"
	"therapy-room-backend/models"
)

func newTestEmbeddingClient(t *testing.T, handler http.HandlerFunc) *EmbeddingClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		UpstageBaseURL:   srv.URL,
		UpstageAPIKey:    "test-key",
		EmbeddingsModel:  "embedding-passage",
		VectorDimensions: 1,
	}
	return NewEmbeddingClient(cfg)
}

// Echoes one-dimensional embeddings whose value encodes the input text,
// returning items in reverse order to exercise index-based reordering.
func echoEmbeddings(calls *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*calls++

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			n, _ := strconv.Atoi(req.Input[i])
			data = append(data, item{Embedding: []float32{float32(n)}, Index: i})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}
}

func TestEmbedPreservesInputOrder(t *testing.T) {
	calls := 0
	client := newTestEmbeddingClient(t, echoEmbeddings(&calls))

	texts := []string{"10", "20", "30"}
	vectors, err := client.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("vectors = %d, want 3", len(vectors))
	}
	for i, want := range []float32{10, 20, 30} {
		if vectors[i][0] != want {
			t.Errorf("vectors[%d] = %v, want %v", i, vectors[i][0], want)
		}
	}
	if calls != 1 {
		t.Errorf("requests = %d, want 1", calls)
	}
}

func TestEmbedSplitsLargeInputsIntoBatches(t *testing.T) {
	calls := 0
	client := newTestEmbeddingClient(t, echoEmbeddings(&calls))

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = fmt.Sprint(i)
	}

	vectors, err := client.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("requests = %d, want 2", calls)
	}
	if len(vectors) != 150 {
		t.Fatalf("vectors = %d, want 150", len(vectors))
	}
	for i := range texts {
		if vectors[i][0] != float32(i) {
			t.Fatalf("vectors[%d] = %v, batches concatenated out of order", i, vectors[i][0])
		}
	}
}

func TestEmbedSurfacesServiceErrors(t *testing.T) {
	client := newTestEmbeddingClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := client.Embed(context.Background(), []string{"hello"})
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("error type = %T, want *models.EmbeddingError", err)
	}
	if embErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", embErr.StatusCode)
	}
}

func TestEmbedRejectsIncompleteResponses(t *testing.T) {
	client := newTestEmbeddingClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{1}, "index": 0},
			},
		})
	})

	_, err := client.Embed(context.Background(), []string{"one", "two"})
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("error type = %T, want *models.EmbeddingError", err)
	}
}

func TestEmbedValidatesDimension(t *testing.T) {
	client := newTestEmbeddingClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{1, 2, 3}, "index": 0},
			},
		})
	})

	_, err := client.Embed(context.Background(), []string{"one"})
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("error type = %T, want *models.EmbeddingError", err)
	}
}
