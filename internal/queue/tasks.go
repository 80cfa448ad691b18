package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"therapy-room-backend/internal/logger"
	"therapy-room-backend/models"
	"therapy-room-backend/services"

	"github.com/hibiken/asynq"
)

const TaskIngestDocument = "document:ingest"

// IngestDocumentPayload describes one uploaded file staged on disk for the
// worker to digitize and ingest.
type IngestDocumentPayload struct {
	DocumentID  string `json:"document_id"`
	FilePath    string `json:"file_path"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// NewIngestDocumentTask enqueues ingestion of a staged upload.
func NewIngestDocumentTask(documentID, filePath, filename, contentType string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestDocumentPayload{
		DocumentID:  documentID,
		FilePath:    filePath,
		Filename:    filename,
		ContentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor executes queued ingestion tasks.
type TaskProcessor struct {
	parser    *services.DocumentParserClient
	ingestion *services.IngestionService
}

func NewTaskProcessor(parser *services.DocumentParserClient, ingestion *services.IngestionService) *TaskProcessor {
	return &TaskProcessor{parser: parser, ingestion: ingestion}
}

// HandleIngestDocument digitizes and ingests one staged upload, then
// removes the staged file. Chunker rejections (empty document,
// unsupported format) are permanent; service failures stay retryable.
func (p *TaskProcessor) HandleIngestDocument(ctx context.Context, t *asynq.Task) error {
	var payload IngestDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	content, err := os.ReadFile(payload.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read staged upload: %v: %w", err, asynq.SkipRetry)
	}

	var html string
	if payload.ContentType == services.XLSXContentType {
		html, err = services.SpreadsheetToHTML(content)
	} else {
		var result *services.ParseResult
		result, err = p.parser.ParseDocument(ctx, content, payload.Filename, payload.ContentType)
		if result != nil {
			html = result.HTML
		}
	}
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedFormat) || errors.Is(err, models.ErrEmptyDocument) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	count, err := p.ingestion.Ingest(ctx, payload.DocumentID, html)
	if err != nil {
		if errors.Is(err, models.ErrEmptyDocument) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		// Partial batches may already be committed; the retry overwrites
		// them at the same ids.
		return err
	}

	if err := os.Remove(payload.FilePath); err != nil {
		logger.Warn("Failed to remove staged upload", "path", payload.FilePath, "error", err)
	}

	logger.Info("Queued document ingested", "document_id", payload.DocumentID, "chunks", count)
	return nil
}
