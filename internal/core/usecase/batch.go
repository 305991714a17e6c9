package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dkotenko/document-intake/internal/core/domain"
	"github.com/dkotenko/document-intake/internal/core/ports"
)

// BatchOptions tunes batch orchestration.
type BatchOptions struct {
	// DefaultConcurrency applies when a request leaves Concurrency unset.
	DefaultConcurrency int
	// MaxConcurrency caps requested concurrency. Zero means no cap.
	MaxConcurrency int
}

func (o BatchOptions) normalized() BatchOptions {
	if o.DefaultConcurrency <= 0 {
		o.DefaultConcurrency = defaultBatchConcurrency()
	}
	return o
}

func defaultBatchConcurrency() int {
	n := runtime.NumCPU()
	if n < 2 {
		n = 2
	}
	if n > 8 {
		n = 8
	}
	return n
}

// gatedProcessor is the pipeline surface the orchestrator needs: process one
// document, sharing a capability gate across the whole run.
type gatedProcessor interface {
	processWithGate(ctx context.Context, ref domain.DocumentRef, className string, gate *capabilityGate) (*domain.DocumentOutcome, error)
}

// batchSlot pins one enumerated document's position so the report follows
// enumeration order no matter when its worker finishes. A slot whose item
// stays nil was canceled before its worker started.
type batchSlot struct {
	ref  domain.DocumentRef
	item *domain.BatchItem
}

// BatchRunUseCase fans documents of an area out over the pipeline with
// bounded concurrency. Document failures never abort the run; every document
// handed to the pipeline appears in the report.
type BatchRunUseCase struct {
	pipeline gatedProcessor
	classes  ports.ClassStore
	source   ports.DocumentSource
	results  ports.ResultStore
	guard    *BatchGuard
	observer ports.PipelineObserver
	opts     BatchOptions
}

func NewBatchRunUseCase(
	pipeline gatedProcessor,
	classes ports.ClassStore,
	source ports.DocumentSource,
	results ports.ResultStore,
	guard *BatchGuard,
	observer ports.PipelineObserver,
	opts BatchOptions,
) *BatchRunUseCase {
	if guard == nil {
		guard = NewBatchGuard()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &BatchRunUseCase{
		pipeline: pipeline,
		classes:  classes,
		source:   source,
		results:  results,
		guard:    guard,
		observer: observer,
		opts:     opts.normalized(),
	}
}

// Guard exposes the class guard so the registry can share it.
func (uc *BatchRunUseCase) Guard() *BatchGuard {
	return uc.guard
}

// Run enumerates req.Area and processes every document not yet marked
// processed (all documents with Force). Cancellation is cooperative: no new
// documents start after ctx is done, in-flight documents run to completion.
func (uc *BatchRunUseCase) Run(ctx context.Context, req domain.BatchRequest) (*domain.BatchReport, error) {
	area := strings.TrimSpace(req.Area)
	if area == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run batch", errors.New("area is empty"))
	}

	className := domain.NormalizeClassName(req.ClassName)
	if className != "" {
		if _, err := uc.classes.Get(ctx, className); err != nil {
			return nil, fmt.Errorf("resolve class %q: %w", className, err)
		}
	}

	var processed map[string]bool
	if !req.Force {
		var err error
		processed, err = uc.results.ProcessedNames(ctx, area)
		if err != nil {
			return nil, fmt.Errorf("load processed names: %w", err)
		}
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = uc.opts.DefaultConcurrency
	}
	if uc.opts.MaxConcurrency > 0 && concurrency > uc.opts.MaxConcurrency {
		concurrency = uc.opts.MaxConcurrency
	}

	release := uc.guard.Acquire(className)
	defer release()

	report := &domain.BatchReport{
		RunID:       uuid.NewString(),
		Area:        area,
		ClassName:   className,
		Concurrency: concurrency,
		Force:       req.Force,
		StartedAt:   time.Now().UTC(),
	}

	gate := newCapabilityGate()
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	var slots []*batchSlot
	walkErr := uc.source.ListDocuments(ctx, area, func(ref domain.DocumentRef) error {
		if err := groupCtx.Err(); err != nil {
			return err
		}
		if !req.Force && processed[ref.Name] {
			report.Skipped++
			return nil
		}

		slot := &batchSlot{ref: ref}
		slots = append(slots, slot)
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return nil
			}
			// In-flight documents run to completion after a cancel; only
			// new starts are cut off.
			uc.runOne(context.WithoutCancel(groupCtx), slot, className, gate)
			return nil
		})
		return nil
	})
	group.Wait()

	report.Canceled = ctx.Err() != nil
	if walkErr != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("enumerate area %q: %w", area, walkErr)
	}

	for _, slot := range slots {
		if slot.item == nil {
			// Canceled before its worker started; stays unprocessed for
			// the next run.
			continue
		}
		report.Items = append(report.Items, *slot.item)
		report.Enumerated++
		switch slot.item.Disposition {
		case domain.DispositionSucceeded:
			report.Succeeded++
		case domain.DispositionPartiallyFailed:
			report.PartiallyFailed++
		default:
			report.FullyFailed++
		}
	}
	report.FinishedAt = time.Now().UTC()

	uc.observer.ObserveBatch(report)
	return report, nil
}

func (uc *BatchRunUseCase) runOne(ctx context.Context, slot *batchSlot, className string, gate *capabilityGate) {
	outcome, err := uc.pipeline.processWithGate(ctx, slot.ref, className, gate)
	if err != nil {
		slot.item = failedItem(slot.ref, className, err)
		return
	}
	slot.item = itemFromOutcome(slot.ref, outcome)
}

// failedItem records a document the pipeline could not even start on, so no
// document is silently dropped from the report.
func failedItem(ref domain.DocumentRef, className string, err error) *domain.BatchItem {
	var stages domain.StageOutcomes
	for _, stage := range domain.Stages() {
		stages.Set(stage, domain.StageFailure("", err.Error()))
	}
	return &domain.BatchItem{
		Document:    ref,
		ClassName:   className,
		Disposition: domain.DispositionFullyFailed,
		Stages:      stages,
	}
}

func itemFromOutcome(ref domain.DocumentRef, outcome *domain.DocumentOutcome) *domain.BatchItem {
	item := &domain.BatchItem{
		Document:        ref,
		ClassName:       outcome.Record.ClassName,
		Disposition:     outcome.Disposition,
		Stages:          outcome.Record.Stages,
		PersistFailures: outcome.PersistFailures,
	}
	if outcome.Record.Extraction != nil {
		item.FieldCount = len(outcome.Record.Extraction.Fields)
	}
	if outcome.OcrSummary != nil {
		item.OCRChars = len(outcome.OcrSummary.OCRText)
		item.SummaryChars = len(outcome.OcrSummary.Summary)
	}
	return item
}
