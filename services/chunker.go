package services

import (
	"strings"
	"time"

	"therapy-room-backend/models"

	"github.com/PuerkitoBio/goquery"
)

// minChunkChars is the coalescing threshold: chunks shorter than this are
// merged into the following chunk so degenerate fragments never reach the
// embedding service on their own.
const minChunkChars = 40

// textSelectors are the elements mined for chunk text, in document order.
// Table cells are not selected directly; tables get structure-aware
// handling of their own.
const textSelectors = "p, h1, h2, h3, h4, h5, h6, li, pre, blockquote, table"

// ChunkerService splits digitized HTML documents into semantic text chunks.
type ChunkerService struct{}

func NewChunkerService() *ChunkerService {
	return &ChunkerService{}
}

// candidate is a pre-coalescing chunk.
type candidate struct {
	text string
	tag  string
}

// ChunkHTML extracts ordered text chunks from an HTML document. A document
// with no usable text is an error, never a silent empty result.
func (cs *ChunkerService) ChunkHTML(htmlContent, documentID string) ([]models.Chunk, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, &models.ParseError{Message: "invalid HTML content", Err: err}
	}

	var candidates []candidate
	doc.Find(textSelectors).Each(func(_ int, sel *goquery.Selection) {
		tag := goquery.NodeName(sel)

		if tag == "table" {
			candidates = append(candidates, chunkTable(sel)...)
			return
		}

		// Content inside a table is covered by the table handling.
		if sel.ParentsFiltered("table").Length() > 0 {
			return
		}

		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		candidates = append(candidates, candidate{text: text, tag: tag})
	})

	merged := coalesce(candidates)
	if len(merged) == 0 {
		return nil, models.ErrEmptyDocument
	}

	now := time.Now().UTC().Format(time.RFC3339)
	chunks := make([]models.Chunk, len(merged))
	for i, c := range merged {
		chunks[i] = models.Chunk{
			Text:       c.text,
			Tag:        c.tag,
			DocumentID: documentID,
			ChunkIndex: i,
			Source:     models.DefaultChunkSource,
			Timestamp:  now,
		}
	}
	return chunks, nil
}

// chunkTable emits, in order: one "<header>: <cell>" chunk per aligned
// header/cell pair, one combined chunk per row, and a single summary chunk
// naming the headers. Rows and cells with no header alignment are skipped.
func chunkTable(table *goquery.Selection) []candidate {
	rows := table.Find("tr")
	if rows.Length() == 0 {
		return nil
	}

	var headers []string
	rows.First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(cell.Text()))
	})

	var out []candidate
	rows.Each(func(rowIdx int, row *goquery.Selection) {
		if rowIdx == 0 {
			return
		}

		var cells []string
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})

		for idx, cell := range cells {
			if cell == "" || idx >= len(headers) || headers[idx] == "" {
				continue
			}
			out = append(out, candidate{
				text: headers[idx] + ": " + cell,
				tag:  "table-cell",
			})
		}

		if len(cells) > 0 {
			pairs := make([]string, len(headers))
			for idx, header := range headers {
				value := ""
				if idx < len(cells) {
					value = cells[idx]
				}
				pairs[idx] = header + ": " + value
			}
			out = append(out, candidate{
				text: strings.Join(pairs, ". "),
				tag:  "table-row",
			})
		}
	})

	if len(headers) > 0 {
		out = append(out, candidate{
			text: "This table compares the following aspects: " + strings.Join(headers, ", "),
			tag:  "table-summary",
		})
	}
	return out
}

// coalesce merges any chunk shorter than minChunkChars into the following
// chunk (text joined by newline, tags joined by "+"). A merged chunk that
// is still short keeps merging forward. The final chunk is emitted as-is
// even when short.
func coalesce(candidates []candidate) []candidate {
	var out []candidate
	carryText, carryTag := "", ""

	for i, c := range candidates {
		text, tag := c.text, c.tag
		if carryText != "" {
			text = carryText + "\n" + text
			tag = carryTag + "+" + tag
			carryText, carryTag = "", ""
		}

		if len(text) < minChunkChars && i < len(candidates)-1 {
			carryText, carryTag = text, tag
			continue
		}
		out = append(out, candidate{text: text, tag: tag})
	}
	return out
}
