package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"therapy-room-backend/internal/config"
	"therapy-room-backend/models"

	"github.com/ledongthuc/pdf"
)

// supportedTypes are the mime types the digitization service accepts.
var supportedTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"text/plain":      true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// DocumentParserClient sends uploads to the Upstage document-digitization
// endpoint and returns the structured (HTML) content for chunking.
type DocumentParserClient struct {
	baseURL     string
	apiKey      string
	maxPDFPages int
	httpClient  *http.Client
}

// ParseResult is the digitized document content.
type ParseResult struct {
	HTML  string `json:"html"`
	Text  string `json:"text"`
	Pages int    `json:"pages"`
}

func NewDocumentParserClient(cfg *config.Config) *DocumentParserClient {
	return &DocumentParserClient{
		baseURL:     cfg.UpstageBaseURL,
		apiKey:      cfg.UpstageAPIKey,
		maxPDFPages: cfg.MaxPDFPages,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // digitization of large scans can take a while
		},
	}
}

// SupportsType reports whether the digitization service accepts the mime type.
func SupportsType(contentType string) bool {
	return supportedTypes[contentType]
}

// ParseDocument digitizes the uploaded file into HTML and plain text.
// Unsupported formats fail before any network call; upstream failures
// surface as *models.ParseError.
func (c *DocumentParserClient) ParseDocument(ctx context.Context, content []byte, filename, contentType string) (*ParseResult, error) {
	if !SupportsType(contentType) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, contentType)
	}

	if contentType == "application/pdf" {
		if err := c.checkPDFPages(content); err != nil {
			return nil, err
		}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("document", filename)
	if err != nil {
		return nil, &models.ParseError{Message: "failed to build upload form", Err: err}
	}
	if _, err := part.Write(content); err != nil {
		return nil, &models.ParseError{Message: "failed to build upload form", Err: err}
	}
	if err := writer.WriteField("output_formats", `["html", "text"]`); err != nil {
		return nil, &models.ParseError{Message: "failed to build upload form", Err: err}
	}
	if err := writer.WriteField("model", "document-parse"); err != nil {
		return nil, &models.ParseError{Message: "failed to build upload form", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &models.ParseError{Message: "failed to build upload form", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/document-digitization", &body)
	if err != nil {
		return nil, &models.ParseError{Message: "failed to create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.ParseError{Message: "digitization request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &models.ParseError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	var parsed struct {
		Content struct {
			HTML string `json:"html"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			Pages int `json:"pages"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &models.ParseError{Message: "malformed digitization response", Err: err}
	}

	return &ParseResult{
		HTML:  parsed.Content.HTML,
		Text:  parsed.Content.Text,
		Pages: parsed.Usage.Pages,
	}, nil
}

// checkPDFPages rejects oversized PDFs locally before spending a remote
// digitization call on them. Unreadable files are left for the remote
// service to judge.
func (c *DocumentParserClient) checkPDFPages(content []byte) error {
	if c.maxPDFPages <= 0 {
		return nil
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil
	}

	if pages := reader.NumPage(); pages > c.maxPDFPages {
		return &models.ParseError{
			Message: fmt.Sprintf("PDF has %d pages, maximum is %d", pages, c.maxPDFPages),
		}
	}
	return nil
}
