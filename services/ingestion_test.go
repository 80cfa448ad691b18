package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"therapy-room-backend/internal/vectorstore"
	"therapy-room-backend/models"

	"github.com/google/uuid"
)

type fakeEmbedder struct {
	dimension int
	calls     [][]string
	err       error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dimension)
		vec[0] = float32(len(texts[i]))
		vectors[i] = vec
	}
	return vectors, nil
}

type fakeStore struct {
	records       map[string]models.VectorRecord
	upsertCalls   int
	failOnUpsert  int
	initCalls     int
	resetCalls    int
	searchResults []models.SearchResult
	searchErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]models.VectorRecord)}
}

func (f *fakeStore) InitCollection(context.Context) error {
	f.initCalls++
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, records []models.VectorRecord) error {
	f.upsertCalls++
	if f.failOnUpsert > 0 && f.upsertCalls >= f.failOnUpsert {
		return &models.StoreError{Op: "upsert", Message: "injected failure"}
	}
	for _, rec := range records {
		f.records[rec.ID] = rec
	}
	return nil
}

func (f *fakeStore) Search(context.Context, []float32, int, *vectorstore.Filter) ([]models.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}

func (f *fakeStore) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	count := 0
	for _, id := range ids {
		if _, ok := f.records[id]; ok {
			delete(f.records, id)
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) DeleteByFilter(_ context.Context, field, value string) (int, error) {
	var ids []string
	for id, rec := range f.records {
		if field == models.PayloadFieldDocumentID && rec.Payload.DocumentID == value {
			ids = append(ids, id)
		}
	}
	return f.DeleteByIDs(context.Background(), ids)
}

func (f *fakeStore) ResetCollection(context.Context) error {
	f.resetCalls++
	f.records = make(map[string]models.VectorRecord)
	return nil
}

func manyParagraphs(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "<p>Paragraph number %03d with enough text to be kept as its own chunk.</p>", i)
	}
	return sb.String()
}

func TestIngestStoresOneRecordPerChunk(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 4}
	store := newFakeStore()
	svc := NewIngestionService(NewChunkerService(), embedder, store)

	count, err := svc.Ingest(context.Background(), "doc-1", manyParagraphs(3))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("chunk count = %d, want 3", count)
	}
	if len(store.records) != 3 {
		t.Fatalf("stored records = %d, want 3", len(store.records))
	}
	if store.initCalls == 0 {
		t.Error("collection was never initialized before upsert")
	}

	for i := 0; i < 3; i++ {
		rec, ok := store.records[ChunkID("doc-1", i)]
		if !ok {
			t.Fatalf("no record for chunk %d", i)
		}
		if rec.Payload.ChunkIndex != i {
			t.Errorf("record %d payload index = %d", i, rec.Payload.ChunkIndex)
		}
		if rec.Payload.DocumentID != "doc-1" {
			t.Errorf("record %d document id = %q", i, rec.Payload.DocumentID)
		}
		if len(rec.Vector) != 4 {
			t.Errorf("record %d vector length = %d", i, len(rec.Vector))
		}
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 4}
	store := newFakeStore()
	svc := NewIngestionService(NewChunkerService(), embedder, store)

	html := manyParagraphs(5)
	if _, err := svc.Ingest(context.Background(), "doc-1", html); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	if _, err := svc.Ingest(context.Background(), "doc-1", html); err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}

	if len(store.records) != 5 {
		t.Fatalf("re-ingest duplicated records: %d stored, want 5", len(store.records))
	}
}

func TestIngestBatchesSequentially(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 2}
	store := newFakeStore()
	svc := NewIngestionService(NewChunkerService(), embedder, store)

	count, err := svc.Ingest(context.Background(), "doc-big", manyParagraphs(150))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if count != 150 {
		t.Fatalf("chunk count = %d, want 150", count)
	}
	if store.upsertCalls != 2 {
		t.Errorf("upsert calls = %d, want 2", store.upsertCalls)
	}
	if len(store.records) != 150 {
		t.Errorf("stored records = %d, want 150", len(store.records))
	}
}

func TestIngestPartialFailureKeepsEarlierBatches(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 2}
	store := newFakeStore()
	store.failOnUpsert = 2
	svc := NewIngestionService(NewChunkerService(), embedder, store)

	_, err := svc.Ingest(context.Background(), "doc-big", manyParagraphs(150))
	if err == nil {
		t.Fatal("expected second batch to fail")
	}
	var storeErr *models.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("error type = %T, want *models.StoreError", err)
	}
	if len(store.records) != 100 {
		t.Errorf("committed records after abort = %d, want 100", len(store.records))
	}
}

func TestIngestEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: &models.EmbeddingError{StatusCode: 500, Message: "boom"}}
	store := newFakeStore()
	svc := NewIngestionService(NewChunkerService(), embedder, store)

	_, err := svc.Ingest(context.Background(), "doc-1", manyParagraphs(2))
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("error type = %T, want *models.EmbeddingError", err)
	}
	if store.upsertCalls != 0 {
		t.Errorf("nothing should reach the store when embedding fails, got %d upserts", store.upsertCalls)
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	svc := NewIngestionService(NewChunkerService(), &fakeEmbedder{dimension: 2}, newFakeStore())

	_, err := svc.Ingest(context.Background(), "doc-1", "<div></div>")
	if !errors.Is(err, models.ErrEmptyDocument) {
		t.Fatalf("error = %v, want ErrEmptyDocument", err)
	}
}

func TestChunkIDDeterministic(t *testing.T) {
	a := ChunkID("doc-1", 0)
	b := ChunkID("doc-1", 0)
	if a != b {
		t.Errorf("same chunk hashed to different ids: %s vs %s", a, b)
	}
	if ChunkID("doc-1", 1) == a {
		t.Error("different chunk indices hashed to the same id")
	}
	if ChunkID("doc-2", 0) == a {
		t.Error("different documents hashed to the same id")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("chunk id %q is not a valid UUID: %v", a, err)
	}
}

func TestRemoveDocument(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 2}
	store := newFakeStore()
	svc := NewIngestionService(NewChunkerService(), embedder, store)

	if _, err := svc.Ingest(context.Background(), "doc-1", manyParagraphs(3)); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if _, err := svc.Ingest(context.Background(), "doc-2", manyParagraphs(2)); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	deleted, err := svc.RemoveDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("RemoveDocument failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	if len(store.records) != 2 {
		t.Errorf("remaining records = %d, want 2", len(store.records))
	}
}

func TestRemoveUnknownDocument(t *testing.T) {
	svc := NewIngestionService(NewChunkerService(), &fakeEmbedder{dimension: 2}, newFakeStore())

	deleted, err := svc.RemoveDocument(context.Background(), "never-ingested")
	if err != nil {
		t.Fatalf("RemoveDocument failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}

func TestResetAllContext(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 2}
	store := newFakeStore()
	svc := NewIngestionService(NewChunkerService(), embedder, store)

	if _, err := svc.Ingest(context.Background(), "doc-1", manyParagraphs(3)); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if err := svc.ResetAllContext(context.Background()); err != nil {
		t.Fatalf("ResetAllContext failed: %v", err)
	}
	if len(store.records) != 0 {
		t.Errorf("records after reset = %d, want 0", len(store.records))
	}
	if store.resetCalls != 1 {
		t.Errorf("reset calls = %d, want 1", store.resetCalls)
	}
}
