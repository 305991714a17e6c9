package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkotenko/document-intake/internal/core/domain"
	"github.com/dkotenko/document-intake/internal/core/ports"
)

// ClassRegistryUseCase manages document class definitions. All lookups go
// through the normalized name, so callers may spell a class any way they
// like.
type ClassRegistryUseCase struct {
	store ports.ClassStore
	guard *BatchGuard
}

func NewClassRegistryUseCase(store ports.ClassStore, guard *BatchGuard) *ClassRegistryUseCase {
	if guard == nil {
		guard = NewBatchGuard()
	}
	return &ClassRegistryUseCase{store: store, guard: guard}
}

func (uc *ClassRegistryUseCase) Get(ctx context.Context, name string) (*domain.DocumentClass, error) {
	normalized := domain.NormalizeClassName(name)
	if normalized == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get class", errors.New("class name is empty"))
	}
	return uc.store.Get(ctx, normalized)
}

func (uc *ClassRegistryUseCase) List(ctx context.Context) ([]domain.DocumentClass, error) {
	return uc.store.List(ctx)
}

// Upsert stays allowed while batches run: every document resolves its class
// once, so a concurrent run observes either the old or the new definition.
func (uc *ClassRegistryUseCase) Upsert(ctx context.Context, class domain.DocumentClass) (*domain.DocumentClass, error) {
	normalized := class.Normalized()
	if err := normalized.Validate(); err != nil {
		return nil, err
	}
	if err := uc.store.Upsert(ctx, normalized); err != nil {
		return nil, err
	}
	stored, err := uc.store.Get(ctx, normalized.Name)
	if err != nil {
		return nil, fmt.Errorf("reload class %q: %w", normalized.Name, err)
	}
	return stored, nil
}

// Delete refuses while any in-flight batch could still read the class.
func (uc *ClassRegistryUseCase) Delete(ctx context.Context, name string) error {
	normalized := domain.NormalizeClassName(name)
	if normalized == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete class", errors.New("class name is empty"))
	}
	if uc.guard.InUse(normalized) {
		return domain.WrapError(domain.ErrConflict, "delete class", fmt.Errorf("class %q is referenced by a running batch", normalized))
	}
	return uc.store.Delete(ctx, normalized)
}
