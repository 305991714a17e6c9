package localtext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dkotenko/document-intake/internal/core/domain"
	"github.com/ledongthuc/pdf"
)

// Extractor recovers machine text from document bytes without touching the
// inference backend. UTF-8 files come back as-is, PDFs go through the
// embedded text layer. Scanned images yield nothing, and the caller falls
// back to OCR output.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, doc domain.DocumentContent) (string, error) {
	data := doc.Data
	if len(data) == 0 {
		return "", nil
	}
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return extractPDFText(data)
	}
	if !utf8.Valid(data) {
		return "", nil
	}
	return strings.TrimSpace(string(data)), nil
}

func extractPDFText(data []byte) (text string, err error) {
	// The pdf reader panics on some corrupt files.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
