package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dkotenko/document-intake/internal/core/domain"
	"github.com/dkotenko/document-intake/internal/core/ports"
)

// UploadDocumentUseCase stores an incoming document, tracks it as pending and
// announces it on the queue so a worker picks it up.
type UploadDocumentUseCase struct {
	storage     ports.ObjectStorage
	results     ports.ResultStore
	queue       ports.MessageQueue
	defaultArea string
}

// NewUploadDocumentUseCase wires the intake path. queue may be nil when no
// worker is deployed; uploads then wait for an explicit process or batch
// call.
func NewUploadDocumentUseCase(storage ports.ObjectStorage, results ports.ResultStore, queue ports.MessageQueue, defaultArea string) *UploadDocumentUseCase {
	return &UploadDocumentUseCase{
		storage:     storage,
		results:     results,
		queue:       queue,
		defaultArea: defaultArea,
	}
}

func (uc *UploadDocumentUseCase) Upload(ctx context.Context, area, filename, className string, body io.Reader) (*domain.UploadTrackingEntry, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file name is empty"))
	}
	area = strings.TrimSpace(area)
	if area == "" {
		area = uc.defaultArea
	}

	ref, err := uc.storage.Save(ctx, area, filename, body)
	if err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	// Re-uploads reset the processed flag so the document is picked up
	// again.
	entry := domain.UploadTrackingEntry{
		FileName:   ref.Name,
		FileRef:    ref.Ref,
		SourceArea: ref.Area,
		Processed:  false,
		UploadedAt: time.Now().UTC(),
	}
	if err := uc.results.TrackUpload(ctx, entry); err != nil {
		return nil, fmt.Errorf("track upload: %w", err)
	}

	if uc.queue != nil {
		evt := domain.UploadEvent{
			FileName:  ref.Name,
			Area:      ref.Area,
			ClassName: domain.NormalizeClassName(className),
		}
		if err := uc.queue.PublishDocumentUploaded(ctx, evt); err != nil {
			return nil, fmt.Errorf("publish upload event: %w", err)
		}
	}
	return &entry, nil
}
