package models

// Payload field names as stored in the vector index. The removal filter
// matches on PayloadFieldDocumentID, so it must stay in sync with the
// Chunk json tags.
const (
	PayloadFieldDocumentID = "document_id"

	DefaultChunkSource = "user-document"
)

// Chunk is a unit of retrievable document text. It is stored verbatim as
// the payload of its vector record.
type Chunk struct {
	Text       string `json:"text"`
	Tag        string `json:"tag"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Source     string `json:"source"`
	Timestamp  string `json:"timestamp"`
}

// VectorRecord is the persisted retrieval unit: a deterministic id, the
// embedding vector and the owning chunk as payload.
type VectorRecord struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Chunk     `json:"payload"`
}

// SearchResult is one similarity match returned by the vector index.
type SearchResult struct {
	Score   float64 `json:"score"`
	Payload Chunk   `json:"payload"`
}
