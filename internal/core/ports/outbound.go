package ports

import (
	"context"
	"io"
	"time"

	"github.com/dkotenko/document-intake/internal/core/domain"
)

// ClassStore persists document class definitions keyed by normalized name.
type ClassStore interface {
	Get(ctx context.Context, name string) (*domain.DocumentClass, error)
	List(ctx context.Context) ([]domain.DocumentClass, error)
	Upsert(ctx context.Context, class domain.DocumentClass) error
	Delete(ctx context.Context, name string) error
}

// DocumentSource enumerates and reads source documents. ListDocuments walks
// an area lazily, calling fn per document; a non-nil fn error stops the walk.
type DocumentSource interface {
	ListDocuments(ctx context.Context, area string, fn func(domain.DocumentRef) error) error
	ReadBytes(ctx context.Context, ref domain.DocumentRef) ([]byte, error)
	Locate(area, name string) domain.DocumentRef
}

// ObjectStorage stores uploaded documents under an area.
type ObjectStorage interface {
	Save(ctx context.Context, area, name string, data io.Reader) (domain.DocumentRef, error)
}

// InferenceGateway is the sole boundary to the external AI capabilities.
// Every error it returns is a *domain.InferenceError; provider shapes never
// leak upward.
type InferenceGateway interface {
	Classify(ctx context.Context, doc domain.DocumentContent) (string, error)
	ExtractFields(ctx context.Context, doc domain.DocumentContent, class domain.DocumentClass) (*domain.ExtractionResult, error)
	OCR(ctx context.Context, doc domain.DocumentContent) (string, error)
	Summarize(ctx context.Context, doc domain.DocumentContent, fullText string) (string, error)
	SuggestSchema(ctx context.Context, className string) ([]domain.FieldPrompt, error)
}

// TextExtractor recovers machine text from document bytes without calling
// the inference backend. An empty result with nil error means the document
// carries no locally readable text.
type TextExtractor interface {
	Extract(ctx context.Context, doc domain.DocumentContent) (string, error)
}

// ResultStore persists pipeline outcomes. Every operation is an idempotent
// upsert; a failure on one record must not block sibling records.
type ResultStore interface {
	UpsertProcessingRecord(ctx context.Context, record domain.ProcessingRecord) error
	ReplaceExtractedFields(ctx context.Context, ref domain.DocumentRef, className string, fields []domain.FieldAnswer) error
	UpsertOcrSummary(ctx context.Context, record domain.OcrSummaryRecord) error
	TrackUpload(ctx context.Context, entry domain.UploadTrackingEntry) error
	MarkUploadProcessed(ctx context.Context, ref domain.DocumentRef, processed bool) error
	ProcessedNames(ctx context.Context, area string) (map[string]bool, error)
}

// HistoryStore reads persisted processing history.
type HistoryStore interface {
	Records(ctx context.Context, filter domain.HistoryFilter) ([]domain.ProcessingRecord, error)
	ClassCounts(ctx context.Context) ([]domain.ClassCount, error)
	FieldRows(ctx context.Context, filter domain.HistoryFilter) ([]domain.ExtractedFieldRow, error)
}

// MessageQueue publishes/consumes document-uploaded events.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, evt domain.UploadEvent) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error
}

// PipelineObserver receives pipeline measurements. Implementations must be
// safe for concurrent use.
type PipelineObserver interface {
	StartDocument()
	FinishDocument(disposition domain.Disposition, duration time.Duration)
	ObserveStage(stage domain.Stage, result domain.StageResult, duration time.Duration)
	ObserveBatch(report *domain.BatchReport)
}
