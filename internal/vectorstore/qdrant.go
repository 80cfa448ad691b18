package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"therapy-room-backend/internal/config"
	"therapy-room-backend/internal/logger"
	"therapy-room-backend/models"
)

// scrollPageSize bounds how many point ids a filtered scroll fetches per
// page during delete-by-filter.
const scrollPageSize = 1000

// QdrantStore is the single point of contact with the Qdrant vector index.
// It owns the collection lifecycle; orchestrators never talk to Qdrant
// directly. Every operation round-trips to the service, nothing is cached.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	httpClient *http.Client
}

// Filter is a Qdrant equality filter on a payload field.
type Filter struct {
	Must []FilterCondition `json:"must"`
}

type FilterCondition struct {
	Key   string      `json:"key"`
	Match FilterMatch `json:"match"`
}

type FilterMatch struct {
	Value string `json:"value"`
}

// FieldFilter builds an equality filter for one payload field.
func FieldFilter(field, value string) *Filter {
	return &Filter{
		Must: []FilterCondition{
			{Key: field, Match: FilterMatch{Value: value}},
		},
	}
}

func NewQdrantStore(cfg *config.Config) *QdrantStore {
	return &QdrantStore{
		baseURL:    cfg.QdrantURL,
		apiKey:     cfg.QdrantAPIKey,
		collection: cfg.QdrantCollection,
		dimension:  cfg.VectorDimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Collection returns the collection name the store operates on.
func (s *QdrantStore) Collection() string { return s.collection }

// InitCollection creates the collection with the configured dimension and
// cosine distance if it does not exist yet. Idempotent.
func (s *QdrantStore) InitCollection(ctx context.Context) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.createCollection(ctx); err != nil {
		return err
	}
	logger.Info("Vector collection created", "collection", s.collection, "dimension", s.dimension)
	return nil
}

// Upsert writes records with overwrite semantics on id collision and waits
// for the operation to be durable before returning.
func (s *QdrantStore) Upsert(ctx context.Context, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]map[string]any, len(records))
	for i, rec := range records {
		points[i] = map[string]any{
			"id":      rec.ID,
			"vector":  rec.Vector,
			"payload": rec.Payload,
		}
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.baseURL, s.collection)
	if err := s.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
		return &models.StoreError{Op: "upsert", Message: err.Error(), Err: err}
	}
	return nil
}

// Search returns up to limit nearest records by cosine similarity in
// descending score order. No score threshold is applied here; callers
// filter for relevance themselves.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 15
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if filter != nil {
		body["filter"] = filter
	}

	var resp struct {
		Result []struct {
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, s.collection)
	if err := s.do(ctx, http.MethodPost, url, body, &resp); err != nil {
		return nil, &models.StoreError{Op: "search", Message: err.Error(), Err: err}
	}

	results := make([]models.SearchResult, 0, len(resp.Result))
	for _, match := range resp.Result {
		var chunk models.Chunk
		if len(match.Payload) > 0 {
			if err := json.Unmarshal(match.Payload, &chunk); err != nil {
				return nil, &models.StoreError{Op: "search", Message: "malformed payload in result", Err: err}
			}
		}
		results = append(results, models.SearchResult{Score: match.Score, Payload: chunk})
	}
	return results, nil
}

// DeleteByIDs removes the given points and returns how many ids were
// submitted for deletion.
func (s *QdrantStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.baseURL, s.collection)
	if err := s.do(ctx, http.MethodPost, url, map[string]any{"points": ids}, nil); err != nil {
		return 0, &models.StoreError{Op: "delete", Message: err.Error(), Err: err}
	}
	return len(ids), nil
}

// DeleteByFilter resolves matching point ids via a filtered scroll, then
// deletes them. Zero matches is a successful no-op, not an error.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, field, value string) (int, error) {
	filter := FieldFilter(field, value)

	var ids []string
	var offset json.RawMessage
	for {
		body := map[string]any{
			"filter":       filter,
			"limit":        scrollPageSize,
			"with_payload": false,
			"with_vector":  false,
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					ID string `json:"id"`
				} `json:"points"`
				NextPageOffset json.RawMessage `json:"next_page_offset"`
			} `json:"result"`
		}

		url := fmt.Sprintf("%s/collections/%s/points/scroll", s.baseURL, s.collection)
		if err := s.do(ctx, http.MethodPost, url, body, &resp); err != nil {
			return 0, &models.StoreError{Op: "scroll", Message: err.Error(), Err: err}
		}

		for _, p := range resp.Result.Points {
			ids = append(ids, p.ID)
		}

		if len(resp.Result.NextPageOffset) == 0 || string(resp.Result.NextPageOffset) == "null" {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	if len(ids) == 0 {
		return 0, nil
	}
	return s.DeleteByIDs(ctx, ids)
}

// ResetCollection destroys and recreates the collection with identical
// settings. No-op when the collection does not currently exist.
func (s *QdrantStore) ResetCollection(ctx context.Context) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	url := fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection)
	if err := s.do(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return &models.StoreError{Op: "reset", Message: err.Error(), Err: err}
	}

	if err := s.createCollection(ctx); err != nil {
		return err
	}
	logger.Info("Vector collection reset", "collection", s.collection)
	return nil
}

func (s *QdrantStore) collectionExists(ctx context.Context) (bool, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}

	if err := s.do(ctx, http.MethodGet, s.baseURL+"/collections", nil, &resp); err != nil {
		return false, &models.StoreError{Op: "list collections", Message: err.Error(), Err: err}
	}

	for _, c := range resp.Result.Collections {
		if c.Name == s.collection {
			return true, nil
		}
	}
	return false, nil
}

func (s *QdrantStore) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
		"optimizers_config": map[string]any{
			"indexing_threshold": 0,
		},
	}

	url := fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection)
	if err := s.do(ctx, http.MethodPut, url, body, nil); err != nil {
		return &models.StoreError{Op: "create collection", Message: err.Error(), Err: err}
	}
	return nil
}

func (s *QdrantStore) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qdrant %s %s: %s: %s", method, url, resp.Status, string(msg))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
