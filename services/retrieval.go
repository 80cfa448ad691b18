package services

import (
	"context"
	"strings"

	"therapy-room-backend/internal/logger"
	"therapy-room-backend/models"
)

// searchLimit is how many nearest records are fetched per query before the
// relevance threshold is applied.
const searchLimit = 15

// Relevance thresholds. Personal-info queries cast a wider net because
// missing them is precision-costly.
const (
	defaultScoreThreshold      = 0.5
	personalInfoScoreThreshold = 0.3
)

// QueryClass labels a query for threshold selection.
type QueryClass int

const (
	QueryClassNormal QueryClass = iota
	QueryClassPersonalInfo
)

func (qc QueryClass) String() string {
	if qc == QueryClassPersonalInfo {
		return "personal-info"
	}
	return "normal"
}

// personalInfoCues are substrings that mark a query as asking about the
// user's own prior writing. A heuristic: false negatives are expected and
// only make the threshold stricter, retrieval still happens.
var personalInfoCues = []string{
	"metaphor",
	"what did i say",
	"what i wrote",
	"remind me",
}

// ClassifyQuery decides which relevance threshold a query gets.
func ClassifyQuery(query string) QueryClass {
	lowered := strings.ToLower(query)
	for _, cue := range personalInfoCues {
		if strings.Contains(lowered, cue) {
			return QueryClassPersonalInfo
		}
	}
	return QueryClassNormal
}

// Threshold returns the minimum score a search result must exceed.
func (qc QueryClass) Threshold() float64 {
	if qc == QueryClassPersonalInfo {
		return personalInfoScoreThreshold
	}
	return defaultScoreThreshold
}

// RetrievalService embeds a query, searches the vector store and returns
// the relevant chunk texts, most relevant first.
type RetrievalService struct {
	embedder Embedder
	store    VectorStore
}

func NewRetrievalService(embedder Embedder, store VectorStore) *RetrievalService {
	return &RetrievalService{embedder: embedder, store: store}
}

// Retrieve returns the texts of chunks scoring above the query-dependent
// threshold, in descending score order. An empty result is success ("no
// relevant context found"); embedding or store failures surface as
// *models.RetrievalError.
func (rs *RetrievalService) Retrieve(ctx context.Context, query string) ([]string, error) {
	vectors, err := rs.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &models.RetrievalError{Err: err}
	}
	if len(vectors) != 1 {
		return nil, &models.RetrievalError{Err: &models.EmbeddingError{Message: "query embedding missing from response"}}
	}

	if err := rs.store.InitCollection(ctx); err != nil {
		return nil, &models.RetrievalError{Err: err}
	}

	results, err := rs.store.Search(ctx, vectors[0], searchLimit, nil)
	if err != nil {
		return nil, &models.RetrievalError{Err: err}
	}

	class := ClassifyQuery(query)
	threshold := class.Threshold()

	texts := make([]string, 0, len(results))
	for _, match := range results {
		if match.Score > threshold {
			texts = append(texts, match.Payload.Text)
		}
	}

	logger.Debug("Context retrieved",
		"query_class", class.String(),
		"candidates", len(results),
		"passed_threshold", len(texts))
	return texts, nil
}
