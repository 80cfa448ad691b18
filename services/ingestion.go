package services

import (
	"context"
	"fmt"

	"therapy-room-backend/internal/logger"
	"therapy-room-backend/internal/vectorstore"
	"therapy-room-backend/models"

	"github.com/google/uuid"
)

// upsertBatchSize caps how many records go to the vector store per upsert
// call. Batches are written sequentially in chunk order.
const upsertBatchSize = 100

// chunkIDNamespace seeds deterministic point ids: the same
// (documentID, chunkIndex) pair always hashes to the same UUID, so
// re-ingestion overwrites instead of duplicating.
var chunkIDNamespace = uuid.MustParse("9a1d8f76-4c1e-4b23-9a67-52f1de1c6e90")

// Embedder converts a batch of texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the collection-lifecycle and vector persistence boundary
// consumed by the orchestrators.
type VectorStore interface {
	InitCollection(ctx context.Context) error
	Upsert(ctx context.Context, records []models.VectorRecord) error
	Search(ctx context.Context, vector []float32, limit int, filter *vectorstore.Filter) ([]models.SearchResult, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
	DeleteByFilter(ctx context.Context, field, value string) (int, error)
	ResetCollection(ctx context.Context) error
}

// IngestionService drives chunk -> embed -> store for one document and
// owns per-document lifecycle (removal, global reset).
type IngestionService struct {
	chunker  *ChunkerService
	embedder Embedder
	store    VectorStore
}

func NewIngestionService(chunker *ChunkerService, embedder Embedder, store VectorStore) *IngestionService {
	return &IngestionService{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
	}
}

// ChunkID returns the deterministic vector id for one chunk of a document.
func ChunkID(documentID string, chunkIndex int) string {
	return uuid.NewMD5(chunkIDNamespace, []byte(fmt.Sprintf("%s_%d", documentID, chunkIndex))).String()
}

// Ingest chunks the document, embeds the chunks and upserts one vector
// record per chunk. Re-ingesting the same document overwrites records at
// matching indices. A batch failure aborts the ingestion but leaves
// already-written batches in place; there is no compensating rollback.
func (is *IngestionService) Ingest(ctx context.Context, documentID, htmlContent string) (int, error) {
	chunks, err := is.chunker.ChunkHTML(htmlContent, documentID)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := is.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, &models.EmbeddingError{
			Message: fmt.Sprintf("expected %d vectors, got %d", len(chunks), len(vectors)),
		}
	}

	records := make([]models.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = models.VectorRecord{
			ID:      ChunkID(documentID, chunk.ChunkIndex),
			Vector:  vectors[i],
			Payload: chunk,
		}
	}

	if err := is.store.InitCollection(ctx); err != nil {
		return 0, err
	}

	for start := 0; start < len(records); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := is.store.Upsert(ctx, records[start:end]); err != nil {
			logger.Error("Ingestion aborted mid-document, earlier batches remain",
				"document_id", documentID, "committed", start, "total", len(records))
			return 0, err
		}
	}

	logger.Info("Document ingested", "document_id", documentID, "chunks", len(chunks))
	return len(chunks), nil
}

// RemoveDocument deletes every vector record belonging to the document.
// Removing an unknown or already-removed document returns zero, not an
// error.
func (is *IngestionService) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	if err := is.store.InitCollection(ctx); err != nil {
		return 0, err
	}

	deleted, err := is.store.DeleteByFilter(ctx, models.PayloadFieldDocumentID, documentID)
	if err != nil {
		return 0, err
	}

	logger.Info("Document vectors removed", "document_id", documentID, "deleted", deleted)
	return deleted, nil
}

// ResetAllContext wipes the whole collection and recreates it empty.
func (is *IngestionService) ResetAllContext(ctx context.Context) error {
	return is.store.ResetCollection(ctx)
}
