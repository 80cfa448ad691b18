package services

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"therapy-room-backend/models"

	"github.com/xuri/excelize/v2"
)

// XLSXContentType is handled locally instead of going through the remote
// digitization service.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SpreadsheetToHTML converts an XLSX workbook into an HTML document of one
// table per sheet, so spreadsheet uploads flow through the table-aware
// chunker. The first row of each sheet is treated as the header row.
func SpreadsheetToHTML(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", &models.ParseError{Message: "failed to open spreadsheet", Err: err}
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", &models.ParseError{Message: fmt.Sprintf("failed to read sheet %q", sheet), Err: err}
		}
		if len(rows) == 0 {
			continue
		}

		sb.WriteString("<h2>")
		sb.WriteString(html.EscapeString(sheet))
		sb.WriteString("</h2>\n<table>\n")

		for rowIdx, row := range rows {
			cellTag := "td"
			if rowIdx == 0 {
				cellTag = "th"
			}
			sb.WriteString("<tr>")
			for _, cell := range row {
				sb.WriteString("<" + cellTag + ">")
				sb.WriteString(html.EscapeString(cell))
				sb.WriteString("</" + cellTag + ">")
			}
			sb.WriteString("</tr>\n")
		}
		sb.WriteString("</table>\n")
	}

	if sb.Len() == 0 {
		return "", models.ErrEmptyDocument
	}
	return sb.String(), nil
}
