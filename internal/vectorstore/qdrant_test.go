package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"therapy-room-backend/internal/config"
	"therapy-room-backend/models"
)

// qdrantFake is a minimal in-memory stand-in for the Qdrant REST API.
type qdrantFake struct {
	mu          sync.Mutex
	collections map[string]bool
	points      map[string]map[string]any
	requests    []string
	scrollPages [][]string
	scrollCall  int
}

func newQdrantFake() *qdrantFake {
	return &qdrantFake{
		collections: make(map[string]bool),
		points:      make(map[string]map[string]any),
	}
}

func (f *qdrantFake) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections":
			var names []map[string]string
			for name := range f.collections {
				names = append(names, map[string]string{"name": name})
			}
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{"collections": names},
			})

		case r.Method == http.MethodPut && r.URL.Path == "/collections/test_chunks":
			f.collections["test_chunks"] = true
			json.NewEncoder(w).Encode(map[string]any{"result": true})

		case r.Method == http.MethodDelete && r.URL.Path == "/collections/test_chunks":
			delete(f.collections, "test_chunks")
			f.points = make(map[string]map[string]any)
			json.NewEncoder(w).Encode(map[string]any{"result": true})

		case r.Method == http.MethodPut && r.URL.Path == "/collections/test_chunks/points":
			var body struct {
				Points []map[string]any `json:"points"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			for _, p := range body.Points {
				f.points[fmt.Sprint(p["id"])] = p
			}
			json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"status": "completed"}})

		case r.Method == http.MethodPost && r.URL.Path == "/collections/test_chunks/points/search":
			json.NewEncoder(w).Encode(map[string]any{
				"result": []map[string]any{
					{"score": 0.9, "payload": map[string]any{"text": "first", "document_id": "doc-1"}},
					{"score": 0.4, "payload": map[string]any{"text": "second", "document_id": "doc-1"}},
				},
			})

		case r.Method == http.MethodPost && r.URL.Path == "/collections/test_chunks/points/scroll":
			var ids []string
			var next any
			if f.scrollCall < len(f.scrollPages) {
				ids = f.scrollPages[f.scrollCall]
				if f.scrollCall < len(f.scrollPages)-1 {
					next = f.scrollCall + 1
				}
			}
			f.scrollCall++
			points := make([]map[string]string, 0, len(ids))
			for _, id := range ids {
				points = append(points, map[string]string{"id": id})
			}
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{
					"points":           points,
					"next_page_offset": next,
				},
			})

		case r.Method == http.MethodPost && r.URL.Path == "/collections/test_chunks/points/delete":
			var body struct {
				Points []string `json:"points"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			for _, id := range body.Points {
				delete(f.points, id)
			}
			json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"status": "completed"}})

		default:
			http.Error(w, "unexpected request: "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
		}
	})
}

func newTestStore(t *testing.T, fake *qdrantFake) *QdrantStore {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		QdrantURL:        srv.URL,
		QdrantCollection: "test_chunks",
		VectorDimensions: 4,
	}
	return NewQdrantStore(cfg)
}

func (f *qdrantFake) sawRequest(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req == substr {
			return true
		}
	}
	return false
}

func TestInitCollectionCreatesOnce(t *testing.T) {
	fake := newQdrantFake()
	store := newTestStore(t, fake)

	if err := store.InitCollection(context.Background()); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	if !fake.collections["test_chunks"] {
		t.Fatal("collection was not created")
	}

	if err := store.InitCollection(context.Background()); err != nil {
		t.Fatalf("second init failed: %v", err)
	}

	creates := 0
	for _, req := range fake.requests {
		if req == "PUT /collections/test_chunks" {
			creates++
		}
	}
	if creates != 1 {
		t.Errorf("create requests = %d, want 1", creates)
	}
}

func TestUpsertWaitsForDurability(t *testing.T) {
	fake := newQdrantFake()
	fake.collections["test_chunks"] = true
	store := newTestStore(t, fake)

	records := []models.VectorRecord{
		{ID: "id-1", Vector: []float32{1, 0, 0, 0}, Payload: models.Chunk{Text: "a", DocumentID: "doc-1"}},
		{ID: "id-2", Vector: []float32{0, 1, 0, 0}, Payload: models.Chunk{Text: "b", DocumentID: "doc-1"}},
	}
	if err := store.Upsert(context.Background(), records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if !fake.sawRequest("PUT /collections/test_chunks/points?wait=true") {
		t.Errorf("upsert did not wait for durability, requests: %v", fake.requests)
	}
	if len(fake.points) != 2 {
		t.Errorf("points stored = %d, want 2", len(fake.points))
	}
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	fake := newQdrantFake()
	store := newTestStore(t, fake)

	if err := store.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("empty upsert failed: %v", err)
	}
	if len(fake.requests) != 0 {
		t.Errorf("empty upsert made %d requests", len(fake.requests))
	}
}

func TestSearchParsesResults(t *testing.T) {
	fake := newQdrantFake()
	store := newTestStore(t, fake)

	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 15, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Score != 0.9 || results[0].Payload.Text != "first" {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].Payload.DocumentID != "doc-1" {
		t.Errorf("payload document id = %q", results[1].Payload.DocumentID)
	}
}

func TestDeleteByFilterScrollsAllPages(t *testing.T) {
	fake := newQdrantFake()
	fake.scrollPages = [][]string{
		{"id-1", "id-2"},
		{"id-3"},
	}
	fake.points = map[string]map[string]any{
		"id-1": {}, "id-2": {}, "id-3": {},
	}
	store := newTestStore(t, fake)

	deleted, err := store.DeleteByFilter(context.Background(), models.PayloadFieldDocumentID, "doc-1")
	if err != nil {
		t.Fatalf("DeleteByFilter failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	if len(fake.points) != 0 {
		t.Errorf("points remaining = %d", len(fake.points))
	}
	if fake.scrollCall != 2 {
		t.Errorf("scroll calls = %d, want 2", fake.scrollCall)
	}
}

func TestDeleteByFilterNoMatches(t *testing.T) {
	fake := newQdrantFake()
	store := newTestStore(t, fake)

	deleted, err := store.DeleteByFilter(context.Background(), models.PayloadFieldDocumentID, "missing")
	if err != nil {
		t.Fatalf("DeleteByFilter failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
	if fake.sawRequest("POST /collections/test_chunks/points/delete?wait=true") {
		t.Error("delete was issued with no matching points")
	}
}

func TestResetCollectionRecreates(t *testing.T) {
	fake := newQdrantFake()
	fake.collections["test_chunks"] = true
	fake.points["id-1"] = map[string]any{}
	store := newTestStore(t, fake)

	if err := store.ResetCollection(context.Background()); err != nil {
		t.Fatalf("ResetCollection failed: %v", err)
	}
	if !fake.collections["test_chunks"] {
		t.Error("collection was not recreated after reset")
	}
	if len(fake.points) != 0 {
		t.Errorf("points survived reset: %d", len(fake.points))
	}
}

func TestResetCollectionAbsentIsNoop(t *testing.T) {
	fake := newQdrantFake()
	store := newTestStore(t, fake)

	if err := store.ResetCollection(context.Background()); err != nil {
		t.Fatalf("ResetCollection failed: %v", err)
	}
	if fake.sawRequest("DELETE /collections/test_chunks") {
		t.Error("reset deleted a collection that did not exist")
	}
}

func TestStoreErrorsCarryOperation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		QdrantURL:        srv.URL,
		QdrantCollection: "test_chunks",
		VectorDimensions: 4,
	}
	store := NewQdrantStore(cfg)

	_, err := store.Search(context.Background(), []float32{1}, 5, nil)
	storeErr, ok := err.(*models.StoreError)
	if !ok {
		t.Fatalf("error type = %T, want *models.StoreError", err)
	}
	if storeErr.Op != "search" {
		t.Errorf("op = %q, want %q", storeErr.Op, "search")
	}
}
