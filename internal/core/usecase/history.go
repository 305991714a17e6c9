package usecase

import (
	"context"
	"strings"

	"github.com/dkotenko/document-intake/internal/core/domain"
	"github.com/dkotenko/document-intake/internal/core/ports"
)

// HistoryQueryUseCase reads processing history with normalized filters.
type HistoryQueryUseCase struct {
	store ports.HistoryStore
}

func NewHistoryQueryUseCase(store ports.HistoryStore) *HistoryQueryUseCase {
	return &HistoryQueryUseCase{store: store}
}

func (uc *HistoryQueryUseCase) Records(ctx context.Context, filter domain.HistoryFilter) ([]domain.ProcessingRecord, error) {
	return uc.store.Records(ctx, normalizeFilter(filter))
}

func (uc *HistoryQueryUseCase) ClassCounts(ctx context.Context) ([]domain.ClassCount, error) {
	return uc.store.ClassCounts(ctx)
}

func (uc *HistoryQueryUseCase) FieldRows(ctx context.Context, filter domain.HistoryFilter) ([]domain.ExtractedFieldRow, error) {
	return uc.store.FieldRows(ctx, normalizeFilter(filter))
}

func normalizeFilter(filter domain.HistoryFilter) domain.HistoryFilter {
	out := domain.HistoryFilter{
		AreaContains: strings.TrimSpace(filter.AreaContains),
		NameContains: strings.TrimSpace(filter.NameContains),
	}
	for _, class := range filter.Classes {
		if normalized := domain.NormalizeClassName(class); normalized != "" {
			out.Classes = append(out.Classes, normalized)
		}
	}
	return out
}
