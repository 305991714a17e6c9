package ports

import (
	"context"
	"io"

	"github.com/dkotenko/document-intake/internal/core/domain"
)

// DocumentProcessor is the inbound contract for single-document processing.
// An empty className means auto-classify.
type DocumentProcessor interface {
	ProcessOne(ctx context.Context, ref domain.DocumentRef, className string) (*domain.DocumentOutcome, error)
}

// BatchRunner is the inbound contract for batch orchestration.
type BatchRunner interface {
	Run(ctx context.Context, req domain.BatchRequest) (*domain.BatchReport, error)
}

// ClassAdmin is the inbound contract for class registry management.
type ClassAdmin interface {
	Get(ctx context.Context, name string) (*domain.DocumentClass, error)
	List(ctx context.Context) ([]domain.DocumentClass, error)
	Upsert(ctx context.Context, class domain.DocumentClass) (*domain.DocumentClass, error)
	Delete(ctx context.Context, name string) error
}

// UploadService is the inbound contract for document intake. An empty
// className defers classification to the pipeline.
type UploadService interface {
	Upload(ctx context.Context, area, filename, className string, body io.Reader) (*domain.UploadTrackingEntry, error)
}

// HistoryReader is the inbound read model for processing history.
type HistoryReader interface {
	Records(ctx context.Context, filter domain.HistoryFilter) ([]domain.ProcessingRecord, error)
	ClassCounts(ctx context.Context) ([]domain.ClassCount, error)
}
