package routes

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"therapy-room-backend/internal/config"
	"therapy-room-backend/internal/logger"
	"therapy-room-backend/internal/queue"
	"therapy-room-backend/models"
	"therapy-room-backend/services"
	"therapy-room-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func SetupDocumentRoutes(router *gin.Engine, cfg *config.Config,
	parser *services.DocumentParserClient, ingestion *services.IngestionService,
	queueClient *asynq.Client) {

	docs := router.Group("/api/documents")

	// Upload: digitize (or convert a spreadsheet locally), then ingest.
	// Large files are staged to disk and handed to the worker instead.
	docs.POST("", func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", nil)
			return
		}

		file, header, err := c.Request.FormFile("document")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file uploaded or invalid file", nil)
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", nil)
			return
		}

		contentType := detectContentType(header.Filename, header.Header.Get("Content-Type"))
		if contentType != services.XLSXContentType && !services.SupportsType(contentType) {
			utils.RespondWithError(c, http.StatusUnsupportedMediaType, "unsupported_format",
				"Unsupported document format", gin.H{"content_type": contentType})
			return
		}

		documentID := uuid.NewString()

		if header.Size > cfg.SyncProcessingLimit && queueClient != nil {
			staged, err := stageUpload(cfg.FileStorageDir, documentID, file)
			if err != nil {
				logger.Error("Failed to stage upload", "error", err)
				utils.RespondWithInternalError(c, "Failed to accept upload", nil)
				return
			}

			task, err := queue.NewIngestDocumentTask(documentID, staged, header.Filename, contentType)
			if err == nil {
				_, err = queueClient.Enqueue(task)
			}
			if err != nil {
				logger.Error("Failed to enqueue ingestion", "error", err)
				utils.RespondWithInternalError(c, "Failed to queue document for processing", nil)
				return
			}

			c.JSON(http.StatusAccepted, gin.H{
				"documentId": documentID,
				"status":     "queued",
			})
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			utils.RespondWithBadRequest(c, "Cannot read uploaded file", nil)
			return
		}

		var htmlContent string
		if contentType == services.XLSXContentType {
			htmlContent, err = services.SpreadsheetToHTML(content)
		} else {
			var result *services.ParseResult
			result, err = parser.ParseDocument(c.Request.Context(), content, header.Filename, contentType)
			if result != nil {
				htmlContent = result.HTML
			}
		}
		if err != nil {
			respondIngestionError(c, documentID, err)
			return
		}

		count, err := ingestion.Ingest(c.Request.Context(), documentID, htmlContent)
		if err != nil {
			respondIngestionError(c, documentID, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"documentId":      documentID,
			"chunksProcessed": count,
		})
	})

	// Direct ingest of already-digitized HTML content.
	docs.POST("/ingest", func(c *gin.Context) {
		var req struct {
			DocumentID  string `json:"documentId" binding:"required"`
			HTMLContent string `json:"htmlContent" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Missing required fields: documentId and htmlContent", nil)
			return
		}

		count, err := ingestion.Ingest(c.Request.Context(), req.DocumentID, req.HTMLContent)
		if err != nil {
			respondIngestionError(c, req.DocumentID, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"chunksProcessed": count,
		})
	})

	docs.DELETE("/:id", func(c *gin.Context) {
		deleted, err := ingestion.RemoveDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			logger.Error("Document removal failed", "document_id", c.Param("id"), "error", err)
			utils.RespondWithUpstreamError(c, "Failed to delete document vectors")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"deletedCount": deleted,
		})
	})

	docs.POST("/reset", func(c *gin.Context) {
		if err := ingestion.ResetAllContext(c.Request.Context()); err != nil {
			logger.Error("Context reset failed", "error", err)
			utils.RespondWithUpstreamError(c, "Failed to reset context")
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
}

// respondIngestionError maps pipeline errors onto HTTP responses. A failed
// ingestion may have left the document partially indexed; say so.
func respondIngestionError(c *gin.Context, documentID string, err error) {
	switch {
	case errors.Is(err, models.ErrEmptyDocument):
		utils.RespondWithBadRequest(c, "No text content found in document", gin.H{"documentId": documentID})
	case errors.Is(err, models.ErrUnsupportedFormat):
		utils.RespondWithError(c, http.StatusUnsupportedMediaType, "unsupported_format",
			"Unsupported document format", gin.H{"documentId": documentID})
	default:
		logger.Error("Ingestion failed", "document_id", documentID, "error", err)
		utils.RespondWithError(c, http.StatusBadGateway, "ingestion_failed",
			"Failed to ingest document; it may be partially indexed",
			gin.H{"documentId": documentID})
	}
}

// detectContentType falls back to the filename extension when the client
// sent a generic content type.
func detectContentType(filename, declared string) string {
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return strings.Split(byExt, ";")[0]
	}
	return declared
}

// stageUpload writes the upload to the staging directory for the worker.
func stageUpload(storageDir, documentID string, file io.Reader) (string, error) {
	dir := filepath.Join(storageDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, documentID)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
