package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dkotenko/document-intake/internal/core/domain"
	"github.com/dkotenko/document-intake/internal/core/ports"
)

// Service renders processing history as downloadable workbooks. XLSX carries
// two sheets, one per document and one per extracted field; CSV carries the
// flat field projection only.
type Service struct {
	history ports.HistoryStore
	logger  *slog.Logger
}

func NewService(history ports.HistoryStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{history: history, logger: logger}
}

const (
	documentsSheet = "Documents"
	fieldsSheet    = "Fields"
)

func (s *Service) ExportXLSX(ctx context.Context, filter domain.HistoryFilter) ([]byte, error) {
	start := time.Now()

	records, err := s.history.Records(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	rows, err := s.history.FieldRows(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query field rows: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), documentsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(fieldsSheet); err != nil {
		return nil, err
	}

	if err := s.writeDocumentsSheet(f, records); err != nil {
		return nil, err
	}
	if err := s.writeFieldsSheet(f, rows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"documents", len(records),
		"fields", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeDocumentsSheet(f *excelize.File, records []domain.ProcessingRecord) error {
	headers := []any{
		"File Name",
		"Source Area",
		"Class",
		"Disposition",
		"Classify",
		"Extract",
		"OCR",
		"Summarize",
		"Processed At",
		"File URL",
	}
	if err := writeRow(f, documentsSheet, 1, headers); err != nil {
		return err
	}

	for i, record := range records {
		values := []any{
			record.Document.Name,
			record.Document.Area,
			record.ClassName,
			string(record.Stages.Disposition()),
			stageCell(record.Stages.Classify),
			stageCell(record.Stages.Extract),
			stageCell(record.Stages.OCR),
			stageCell(record.Stages.Summarize),
			record.ProcessedAt.UTC().Format("2006-01-02 15:04:05"),
			record.Document.URL,
		}
		if err := writeRow(f, documentsSheet, i+2, values); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(documentsSheet, "A", "A", 32)
	_ = f.SetColWidth(documentsSheet, "B", "C", 18)
	_ = f.SetColWidth(documentsSheet, "D", "H", 16)
	_ = f.SetColWidth(documentsSheet, "I", "I", 20)
	_ = f.SetColWidth(documentsSheet, "J", "J", 60)
	return nil
}

func (s *Service) writeFieldsSheet(f *excelize.File, rows []domain.ExtractedFieldRow) error {
	headers := []any{"File Ref", "Class", "Field", "Value", "Confidence", "File URL"}
	if err := writeRow(f, fieldsSheet, 1, headers); err != nil {
		return err
	}

	for i, row := range rows {
		values := []any{
			row.FileRef,
			row.ClassName,
			row.FieldName,
			truncate(row.FieldValue.Text(), 300),
			confidenceCell(row.Confidence),
			row.FileURL,
		}
		if err := writeRow(f, fieldsSheet, i+2, values); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(fieldsSheet, "A", "A", 40)
	_ = f.SetColWidth(fieldsSheet, "B", "C", 20)
	_ = f.SetColWidth(fieldsSheet, "D", "D", 48)
	_ = f.SetColWidth(fieldsSheet, "E", "E", 12)
	_ = f.SetColWidth(fieldsSheet, "F", "F", 60)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}

// ExportCSV writes the flat field projection: one line per extracted field
// per document.
func (s *Service) ExportCSV(ctx context.Context, filter domain.HistoryFilter) ([]byte, error) {
	start := time.Now()

	rows, err := s.history.FieldRows(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query field rows: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"file_ref", "class_name", "field_name", "field_value", "confidence", "file_url"}); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.FileRef,
			row.ClassName,
			row.FieldName,
			row.FieldValue.Text(),
			confidenceCell(row.Confidence),
			row.FileURL,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("csv write: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}

	s.logger.Info("export.csv.ok",
		"fields", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func stageCell(result domain.StageResult) string {
	if result.State != domain.StageFailed {
		return string(result.State)
	}
	return truncate(fmt.Sprintf("failed: %s", result.Reason), 120)
}

func confidenceCell(confidence *float64) string {
	if confidence == nil {
		return ""
	}
	return strconv.FormatFloat(*confidence, 'f', 2, 64)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
