package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"therapy-room-backend/internal/config"
	"therapy-room-backend/models"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// ChatClient generates assistant replies. Default provider is an
// OpenAI-compatible endpoint (RedPill/Llama, as deployed); "google" routes
// through the Gemini SDK instead.
type ChatClient struct {
	provider   string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	gemini     *genai.Client
	geminiName string
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

func NewChatClient(cfg *config.Config) (*ChatClient, error) {
	c := &ChatClient{
		provider:   cfg.ChatProvider,
		baseURL:    cfg.ChatBaseURL,
		apiKey:     cfg.ChatAPIKey,
		model:      cfg.ChatModel,
		geminiName: cfg.GeminiModel,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		limiter:    rate.NewLimiter(rate.Limit(2), 5),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ChatLLM",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	})

	switch cfg.ChatProvider {
	case "redpill", "":
		if cfg.ChatAPIKey == "" {
			return nil, fmt.Errorf("missing REDPILL_API_KEY for chat completions")
		}
	case "google":
		client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, err
		}
		c.gemini = client
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", cfg.ChatProvider)
	}

	return c, nil
}

// Complete returns the assistant reply for the given system prompt,
// conversation history and user message.
func (c *ChatClient) Complete(ctx context.Context, system string, history []models.ChatHistory, user string) (string, error) {
	tracer := otel.Tracer("chat-client")
	ctx, span := tracer.Start(ctx, "chat.complete")
	defer span.End()

	span.SetAttributes(
		attribute.String("chat.provider", c.provider),
		attribute.Int("chat.history_turns", len(history)),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		if c.gemini != nil {
			return c.completeGemini(ctx, system, history, user)
		}
		return c.completeOpenAI(ctx, system, history, user)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("chat.circuit_breaker_open", true))
			return "I'm experiencing high demand right now. Please try again in a moment.", nil
		}
		span.SetAttributes(attribute.Bool("chat.error", true))
		return "", err
	}

	return result.(string), nil
}

type chatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []chatMessagePayload `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

type chatMessagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatClient) completeOpenAI(ctx context.Context, system string, history []models.ChatHistory, user string) (string, error) {
	messages := make([]chatMessagePayload, 0, len(history)+2)
	messages = append(messages, chatMessagePayload{Role: "system", Content: system})
	for _, turn := range history {
		messages = append(messages, chatMessagePayload{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessagePayload{Role: "user", Content: user})

	body, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.4,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat completion failed (status %d): %s", resp.StatusCode, string(msg))
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("malformed chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

func (c *ChatClient) completeGemini(ctx context.Context, system string, history []models.ChatHistory, user string) (string, error) {
	model := c.gemini.GenerativeModel(c.geminiName)
	model.SetTemperature(0.4)
	model.SetMaxOutputTokens(1000)

	// Gemini takes a single prompt; fold system + history in.
	var sb strings.Builder
	sb.WriteString(system)
	sb.WriteString("\n\n")
	for _, turn := range history {
		if turn.Role == "user" {
			sb.WriteString("User: ")
		} else {
			sb.WriteString("You: ")
		}
		sb.WriteString(turn.Content)
		sb.WriteString("\n\n")
	}
	sb.WriteString(user)

	resp, err := model.GenerateContent(ctx, genai.Text(sb.String()))
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out.WriteString(string(text))
			}
		}
		break
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no content returned")
	}

	return out.String(), nil
}

// Close releases the underlying SDK client, if any.
func (c *ChatClient) Close() error {
	if c.gemini != nil {
		return c.gemini.Close()
	}
	return nil
}
