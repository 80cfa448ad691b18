package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"therapy-room-backend/internal/ai"
	"therapy-room-backend/internal/config"
	"therapy-room-backend/internal/logger"
	"therapy-room-backend/models"
)

const summaryPrompt = `Below is a conversation between a user and an AI assistant.
Please create a brief, empathetic summary (2-3 sentences) of the user's current emotional state and situation.
Focus on their feelings and what they're going through right now.
This summary will be used to generate a supportive image for them.
Use a 2nd person pov, as if you are talking to the user, so just use "you" and "your" instead of "user" and "user's".

Conversation:
%s

Summary:`

const imagePromptTemplate = `Anime-style illustration of young Asian male with black bowl cut, green hoodie, blue shirt. Scenario: %s

Character details: Male with bowl haircut, friendly expression. Pose and emotions should match scenario.

Scene must include all objects mentioned in scenario. Background elements must support the scenario context with vibrant colors and clear composition.

Important: Show exactly what's happening in the scenario (e.g., if "dropping cake", show the cake falling/fallen). Must include something from the scenario, and the character`

// ImageGenService turns recent chat history into a supportive scene image:
// the LLM summarizes the user's state, then the summary drives an image
// generation call.
type ImageGenService struct {
	chat       *ai.ChatClient
	apiKey     string
	model      string
	storageDir string
	httpClient *http.Client
}

// ImageResult is the generated image location.
type ImageResult struct {
	Summary  string `json:"summary"`
	ImageURL string `json:"imageUrl"`
	Saved    string `json:"saved,omitempty"`
}

func NewImageGenService(cfg *config.Config, chat *ai.ChatClient) *ImageGenService {
	return &ImageGenService{
		chat:       chat,
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.ImageModel,
		storageDir: cfg.FileStorageDir,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// GenerateFromHistory summarizes the conversation and generates an image
// for it. History must be non-empty.
func (s *ImageGenService) GenerateFromHistory(ctx context.Context, history []models.Message) (*ImageResult, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("no chat history to summarize")
	}

	var convo strings.Builder
	for _, msg := range history {
		convo.WriteString("User: ")
		convo.WriteString(msg.User)
		convo.WriteString("\nAssistant: ")
		convo.WriteString(msg.Assistant)
		convo.WriteString("\n\n")
	}

	summary, err := s.chat.Complete(ctx, "You are a concise, empathetic summarizer.", nil,
		fmt.Sprintf(summaryPrompt, convo.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize conversation: %w", err)
	}
	summary = strings.TrimSpace(summary)

	imageURL, err := s.generateImage(ctx, fmt.Sprintf(imagePromptTemplate, summary))
	if err != nil {
		return nil, err
	}

	result := &ImageResult{Summary: summary, ImageURL: imageURL}

	// Saving locally is best effort; the URL alone is a usable result.
	if saved, err := s.saveImage(ctx, imageURL); err != nil {
		logger.Warn("Failed to save generated image locally", "error", err)
	} else {
		result.Saved = saved
	}

	return result, nil
}

type imageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

func (s *ImageGenService) generateImage(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(imageGenerationRequest{
		Model:          s.model,
		Prompt:         prompt,
		N:              1,
		Size:           "512x512",
		ResponseFormat: "url",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.openai.com/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("image generation failed (status %d): %s", resp.StatusCode, string(msg))
	}

	var parsed struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("malformed image generation response: %w", err)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].URL == "" {
		return "", fmt.Errorf("image generation returned no image URL")
	}

	return parsed.Data[0].URL, nil
}

// saveImage downloads the generated image into the storage directory using
// the next free numeric filename.
func (s *ImageGenService) saveImage(ctx context.Context, imageURL string) (string, error) {
	imgDir := filepath.Join(s.storageDir, "img")
	if err := os.MkdirAll(imgDir, 0o755); err != nil {
		return "", err
	}

	nextIndex := 1
	if entries, err := os.ReadDir(imgDir); err == nil {
		for _, entry := range entries {
			name := strings.TrimSuffix(entry.Name(), ".png")
			if idx, err := strconv.Atoi(name); err == nil && idx >= nextIndex {
				nextIndex = idx + 1
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	path := filepath.Join(imgDir, strconv.Itoa(nextIndex)+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
