package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Extractor turns raw document bytes into plain text, dispatching on the
// file extension. The language hint only matters for the legacy-encoding
// fallback on the retry ingestion performs for non-default languages.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, content []byte, extension, languageHint string) (string, error) {
	switch normalizeExtension(extension) {
	case "pdf":
		return extractPDF(content)
	case "xlsx", "xlsm":
		return extractSpreadsheet(content)
	default:
		return extractPlaintext(content, languageHint), nil
	}
}

func normalizeExtension(extension string) string {
	return strings.ToLower(strings.TrimPrefix(extension, "."))
}

// extractPlaintext accepts UTF-8 directly. Non-UTF-8 bytes only decode on
// the language-specific retry, where Latin-1 is assumed for the configured
// European languages.
func extractPlaintext(content []byte, languageHint string) string {
	if utf8.Valid(content) {
		return strings.TrimSpace(string(content))
	}
	if languageHint == "" {
		return ""
	}
	runes := make([]rune, 0, len(content))
	for _, b := range content {
		runes = append(runes, rune(b))
	}
	return strings.TrimSpace(string(runes))
}

func extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(textReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func extractSpreadsheet(content []byte) (string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer file.Close()

	var builder strings.Builder
	for _, sheet := range file.GetSheetList() {
		rows, err := file.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line == "" {
				continue
			}
			builder.WriteString(line)
			builder.WriteByte('\n')
		}
	}
	return strings.TrimSpace(builder.String()), nil
}
