package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dkotenko/document-intake/internal/core/domain"
)

// ResultRepository persists pipeline outcomes across the result tables and
// serves the history projections. Every write is an idempotent upsert keyed
// by file reference, so reprocessing a document replaces its previous rows.
type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) UpsertProcessingRecord(ctx context.Context, record domain.ProcessingRecord) error {
	stagesJSON, err := json.Marshal(record.Stages)
	if err != nil {
		return fmt.Errorf("marshal stage outcomes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents_processed (file_ref, file_name, file_url, source_area, class_name, stages, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (file_ref) DO UPDATE
SET file_name = EXCLUDED.file_name,
	file_url = EXCLUDED.file_url,
	source_area = EXCLUDED.source_area,
	class_name = EXCLUDED.class_name,
	stages = EXCLUDED.stages,
	processed_at = EXCLUDED.processed_at
`,
		record.Document.Ref, record.Document.Name, record.Document.URL, record.Document.Area,
		record.ClassName, stagesJSON, record.ProcessedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "upsert processing record", err)
	}
	return nil
}

// ReplaceExtractedFields swaps a document's field rows in one transaction so
// readers never observe a mix of old and new answers.
func (r *ResultRepository) ReplaceExtractedFields(ctx context.Context, ref domain.DocumentRef, className string, fields []domain.FieldAnswer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "begin replace fields tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM documents_extracted_fields
WHERE file_ref = $1
`, ref.Ref); err != nil {
		return domain.WrapError(domain.ErrPersistence, "delete extracted fields", err)
	}

	for position, field := range fields {
		valueJSON, err := json.Marshal(field.Value)
		if err != nil {
			return fmt.Errorf("marshal field %s: %w", field.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO documents_extracted_fields (file_ref, class_name, field_name, field_value, confidence, position)
VALUES ($1, $2, $3, $4, $5, $6)
`, ref.Ref, className, field.Name, valueJSON, field.Confidence, position); err != nil {
			return domain.WrapError(domain.ErrPersistence, "insert extracted field", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrPersistence, "commit replace fields tx", err)
	}
	return nil
}

func (r *ResultRepository) UpsertOcrSummary(ctx context.Context, record domain.OcrSummaryRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO document_ocr (file_ref, file_name, ocr_text, summary, processed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (file_ref) DO UPDATE
SET file_name = EXCLUDED.file_name,
	ocr_text = EXCLUDED.ocr_text,
	summary = EXCLUDED.summary,
	processed_at = EXCLUDED.processed_at
`, record.FileRef, record.FileName, record.OCRText, record.Summary, record.ProcessedAt)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "upsert ocr summary", err)
	}
	return nil
}

func (r *ResultRepository) TrackUpload(ctx context.Context, entry domain.UploadTrackingEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO new_uploads (file_name, file_ref, source_area, processed, uploaded_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (file_name) DO UPDATE
SET file_ref = EXCLUDED.file_ref,
	source_area = EXCLUDED.source_area,
	processed = EXCLUDED.processed,
	uploaded_at = EXCLUDED.uploaded_at
`, entry.FileName, entry.FileRef, entry.SourceArea, entry.Processed, entry.UploadedAt)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "track upload", err)
	}
	return nil
}

// MarkUploadProcessed flips the processed marker, creating the tracking row
// for documents that arrived outside the upload endpoint.
func (r *ResultRepository) MarkUploadProcessed(ctx context.Context, ref domain.DocumentRef, processed bool) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO new_uploads (file_name, file_ref, source_area, processed, uploaded_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (file_name) DO UPDATE
SET processed = EXCLUDED.processed
`, ref.Name, ref.Ref, ref.Area, processed, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "mark upload processed", err)
	}
	return nil
}

func (r *ResultRepository) ProcessedNames(ctx context.Context, area string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT file_name
FROM new_uploads
WHERE source_area = $1 AND processed = TRUE
`, area)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "query processed names", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan processed name", err)
		}
		out[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate processed names", err)
	}
	return out, nil
}

func (r *ResultRepository) Records(ctx context.Context, filter domain.HistoryFilter) ([]domain.ProcessingRecord, error) {
	query := `
SELECT file_ref, file_name, file_url, source_area, class_name, stages, processed_at
FROM documents_processed
`
	where, args := historyConditions(filter, "class_name", "source_area", "file_name")
	query += where + "ORDER BY processed_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "query history records", err)
	}
	defer rows.Close()

	out := make([]domain.ProcessingRecord, 0)
	for rows.Next() {
		var record domain.ProcessingRecord
		var stagesRaw []byte
		if err := rows.Scan(
			&record.Document.Ref, &record.Document.Name, &record.Document.URL, &record.Document.Area,
			&record.ClassName, &stagesRaw, &record.ProcessedAt,
		); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan history record", err)
		}
		if err := json.Unmarshal(stagesRaw, &record.Stages); err != nil {
			return nil, fmt.Errorf("unmarshal stage outcomes: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate history records", err)
	}
	return out, nil
}

func (r *ResultRepository) ClassCounts(ctx context.Context) ([]domain.ClassCount, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT class_name, COUNT(*)
FROM documents_processed
GROUP BY class_name
ORDER BY COUNT(*) DESC, class_name
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "query class counts", err)
	}
	defer rows.Close()

	out := make([]domain.ClassCount, 0)
	for rows.Next() {
		var count domain.ClassCount
		if err := rows.Scan(&count.ClassName, &count.Documents); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan class count", err)
		}
		out = append(out, count)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate class counts", err)
	}
	return out, nil
}

func (r *ResultRepository) FieldRows(ctx context.Context, filter domain.HistoryFilter) ([]domain.ExtractedFieldRow, error) {
	query := `
SELECT COALESCE(d.file_url, ''), f.file_ref, f.class_name, f.field_name, f.field_value, f.confidence
FROM documents_extracted_fields f
LEFT JOIN documents_processed d ON d.file_ref = f.file_ref
`
	where, args := historyConditions(filter, "f.class_name", "COALESCE(d.source_area, '')", "COALESCE(d.file_name, '')")
	query += where + "ORDER BY f.file_ref, f.position"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "query field rows", err)
	}
	defer rows.Close()

	out := make([]domain.ExtractedFieldRow, 0)
	for rows.Next() {
		var row domain.ExtractedFieldRow
		var valueRaw []byte
		var confidence sql.NullFloat64
		if err := rows.Scan(&row.FileURL, &row.FileRef, &row.ClassName, &row.FieldName, &valueRaw, &confidence); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan field row", err)
		}
		if len(valueRaw) > 0 {
			if err := json.Unmarshal(valueRaw, &row.FieldValue); err != nil {
				return nil, fmt.Errorf("unmarshal field value: %w", err)
			}
		}
		if confidence.Valid {
			row.Confidence = &confidence.Float64
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate field rows", err)
	}
	return out, nil
}

// historyConditions renders the optional filter into a WHERE clause with
// numbered placeholders, parameterized by the column names of the querying
// table.
func historyConditions(filter domain.HistoryFilter, classCol, areaCol, nameCol string) (string, []any) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, len(filter.Classes)+2)

	if len(filter.Classes) > 0 {
		placeholders := make([]string, 0, len(filter.Classes))
		for _, class := range filter.Classes {
			args = append(args, class)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", classCol, strings.Join(placeholders, ", ")))
	}
	if filter.AreaContains != "" {
		args = append(args, "%"+filter.AreaContains+"%")
		conds = append(conds, fmt.Sprintf("%s ILIKE $%d", areaCol, len(args)))
	}
	if filter.NameContains != "" {
		args = append(args, "%"+filter.NameContains+"%")
		conds = append(conds, fmt.Sprintf("%s ILIKE $%d", nameCol, len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND ") + "\n", args
}
