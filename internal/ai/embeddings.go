package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"therapy-room-backend/internal/config"
	"therapy-room-backend/models"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// EmbedBatchSize caps how many texts go to the embedding service per call.
// Batches for one document are issued sequentially, never concurrently.
const EmbedBatchSize = 100

// EmbeddingClient generates fixed-dimension embeddings via the Upstage
// embeddings endpoint. Failures surface as *models.EmbeddingError and are
// not retried here; retry policy belongs to the caller.
type EmbeddingClient struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

func NewEmbeddingClient(cfg *config.Config) *EmbeddingClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "UpstageEmbeddings",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	})

	return &EmbeddingClient{
		baseURL:    cfg.UpstageBaseURL,
		apiKey:     cfg.UpstageAPIKey,
		model:      cfg.EmbeddingsModel,
		dimension:  cfg.VectorDimensions,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		breaker:    breaker,
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
	}
}

// Dimension returns the vector size the client expects from the service.
func (c *EmbeddingClient) Dimension() int { return c.dimension }

// Embed converts texts to vectors, batching at EmbedBatchSize per call and
// concatenating batch results in input order.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	tracer := otel.Tracer("embedding-client")
	ctx, span := tracer.Start(ctx, "embeddings.embed")
	defer span.End()

	span.SetAttributes(
		attribute.Int("embeddings.texts", len(texts)),
		attribute.String("embeddings.model", c.model),
	)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += EmbedBatchSize {
		end := start + EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			span.SetAttributes(attribute.Bool("embeddings.error", true))
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *EmbeddingClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &models.EmbeddingError{Message: "rate limiter wait aborted", Err: err}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model})
		if err != nil {
			return nil, &models.EmbeddingError{Message: "failed to encode request", Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, &models.EmbeddingError{Message: "failed to create request", Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &models.EmbeddingError{Message: "request failed", Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, &models.EmbeddingError{
				StatusCode: resp.StatusCode,
				Message:    string(msg),
			}
		}

		var parsed embeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, &models.EmbeddingError{Message: "malformed response body", Err: err}
		}

		if len(parsed.Data) != len(texts) {
			return nil, &models.EmbeddingError{
				Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Data)),
			}
		}

		// Responses carry an index per item; place vectors back in input order.
		vectors := make([][]float32, len(texts))
		for _, item := range parsed.Data {
			if item.Index < 0 || item.Index >= len(texts) {
				return nil, &models.EmbeddingError{
					Message: fmt.Sprintf("embedding index %d out of range", item.Index),
				}
			}
			if c.dimension > 0 && len(item.Embedding) != c.dimension {
				return nil, &models.EmbeddingError{
					Message: fmt.Sprintf("expected %d-dimensional vector, got %d", c.dimension, len(item.Embedding)),
				}
			}
			vectors[item.Index] = item.Embedding
		}
		for i, v := range vectors {
			if v == nil {
				return nil, &models.EmbeddingError{
					Message: fmt.Sprintf("missing embedding for input %d", i),
				}
			}
		}

		return vectors, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &models.EmbeddingError{Message: "embedding service unavailable (circuit open)", Err: err}
		}
		return nil, err
	}

	return result.([][]float32), nil
}
