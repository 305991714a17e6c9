package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dkotenko/document-intake/internal/core/domain"
	"github.com/dkotenko/document-intake/internal/core/ports"
)

// PipelineOptions tunes per-document behavior.
type PipelineOptions struct {
	// FallbackClass drives extraction when the classify stage fails. Empty
	// means no fallback: extraction is skipped instead.
	FallbackClass string
	// AutoSeedClasses registers a gateway-suggested schema when a document
	// classifies into an unknown class.
	AutoSeedClasses bool
	// SummaryMaxChars bounds the text handed to the summarizer.
	SummaryMaxChars int
	// MarkFailedProcessed marks documents processed even when stages failed,
	// so reruns do not retry them forever. Off by default: failed documents
	// stay unprocessed and are picked up by the next resumable run.
	MarkFailedProcessed bool
}

func (o PipelineOptions) normalized() PipelineOptions {
	o.FallbackClass = domain.NormalizeClassName(o.FallbackClass)
	if o.SummaryMaxChars <= 0 {
		o.SummaryMaxChars = 6000
	}
	return o
}

// capabilityGate latches capabilities reported unavailable so a run stops
// calling a dead capability after its first failure. Scoped to one batch run
// or one ad-hoc document.
type capabilityGate struct {
	mu      sync.Mutex
	reasons map[domain.Stage]string
}

func newCapabilityGate() *capabilityGate {
	return &capabilityGate{reasons: make(map[domain.Stage]string)}
}

func (g *capabilityGate) blocked(stage domain.Stage) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reason, ok := g.reasons[stage]
	return reason, ok
}

func (g *capabilityGate) latch(stage domain.Stage, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.reasons[stage]; !ok {
		g.reasons[stage] = reason
	}
}

type noopObserver struct{}

func (noopObserver) StartDocument()                                               {}
func (noopObserver) FinishDocument(domain.Disposition, time.Duration)             {}
func (noopObserver) ObserveStage(domain.Stage, domain.StageResult, time.Duration) {}
func (noopObserver) ObserveBatch(*domain.BatchReport)                             {}

// ProcessDocumentUseCase runs the classify, extract, ocr and summarize stages
// for one document and persists every outcome. Stage failures never abort the
// document; the remaining stages still run.
type ProcessDocumentUseCase struct {
	classes   ports.ClassStore
	source    ports.DocumentSource
	gateway   ports.InferenceGateway
	extractor ports.TextExtractor
	results   ports.ResultStore
	observer  ports.PipelineObserver
	opts      PipelineOptions
}

func NewProcessDocumentUseCase(
	classes ports.ClassStore,
	source ports.DocumentSource,
	gateway ports.InferenceGateway,
	extractor ports.TextExtractor,
	results ports.ResultStore,
	observer ports.PipelineObserver,
	opts PipelineOptions,
) *ProcessDocumentUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	return &ProcessDocumentUseCase{
		classes:   classes,
		source:    source,
		gateway:   gateway,
		extractor: extractor,
		results:   results,
		observer:  observer,
		opts:      opts.normalized(),
	}
}

// ProcessOne processes a single document. An empty className means
// auto-classify; a named class must exist.
func (uc *ProcessDocumentUseCase) ProcessOne(ctx context.Context, ref domain.DocumentRef, className string) (*domain.DocumentOutcome, error) {
	return uc.processWithGate(ctx, ref, className, newCapabilityGate())
}

func (uc *ProcessDocumentUseCase) processWithGate(ctx context.Context, ref domain.DocumentRef, className string, gate *capabilityGate) (*domain.DocumentOutcome, error) {
	var explicit *domain.DocumentClass
	if name := domain.NormalizeClassName(className); name != "" {
		class, err := uc.classes.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve class %q: %w", name, err)
		}
		explicit = class
	}

	uc.observer.StartDocument()
	started := time.Now()

	outcome := uc.runStages(ctx, ref, explicit, gate)
	uc.persistOutcome(ctx, outcome)
	uc.observer.FinishDocument(outcome.Disposition, time.Since(started))

	return outcome, nil
}

func (uc *ProcessDocumentUseCase) runStages(ctx context.Context, ref domain.DocumentRef, explicit *domain.DocumentClass, gate *capabilityGate) *domain.DocumentOutcome {
	record := domain.ProcessingRecord{Document: ref}

	data, err := uc.source.ReadBytes(ctx, ref)
	if err != nil {
		reason := fmt.Sprintf("read document: %v", err)
		for _, stage := range domain.Stages() {
			record.Stages.Set(stage, domain.StageFailure("", reason))
		}
		record.ProcessedAt = time.Now().UTC()
		return &domain.DocumentOutcome{Record: record, Disposition: record.Stages.Disposition()}
	}
	doc := domain.DocumentContent{Ref: ref, Data: data}

	class, skipReason := uc.resolveClass(ctx, doc, explicit, gate, &record)
	record.Extraction = uc.extractFields(ctx, doc, class, skipReason, gate, &record)
	ocrText := uc.runOCR(ctx, doc, gate, &record)
	summary := uc.summarize(ctx, doc, ocrText, gate, &record)

	record.ProcessedAt = time.Now().UTC()

	outcome := &domain.DocumentOutcome{Record: record, Disposition: record.Stages.Disposition()}
	if ocrText != "" || summary != "" {
		outcome.OcrSummary = &domain.OcrSummaryRecord{
			FileName:    ref.Name,
			FileRef:     ref.Ref,
			OCRText:     ocrText,
			Summary:     summary,
			ProcessedAt: record.ProcessedAt,
		}
	}
	return outcome
}

// resolveClass decides which class drives extraction. A known class skips the
// classify call; otherwise the gateway guess is looked up in the registry,
// optionally seeding an unknown class. Returns the class, or the reason no
// class resolved.
func (uc *ProcessDocumentUseCase) resolveClass(ctx context.Context, doc domain.DocumentContent, explicit *domain.DocumentClass, gate *capabilityGate, record *domain.ProcessingRecord) (*domain.DocumentClass, string) {
	started := time.Now()

	if explicit != nil {
		record.ClassName = explicit.Name
		uc.finishStage(record, domain.StageClassify, domain.StageSuccess(), started)
		return explicit, ""
	}

	if reason, blocked := gate.blocked(domain.StageClassify); blocked {
		uc.finishStage(record, domain.StageClassify, domain.StageFailure(domain.FailureUnavailable, reason), started)
		return uc.classifyFallback(ctx, record, "classification unavailable")
	}

	guess, err := uc.gateway.Classify(ctx, doc)
	if err != nil {
		uc.finishStage(record, domain.StageClassify, uc.failStage(domain.StageClassify, err, gate), started)
		return uc.classifyFallback(ctx, record, "classification failed")
	}

	name := domain.NormalizeClassName(guess)
	class, err := uc.classes.Get(ctx, name)
	if err == nil {
		record.ClassName = class.Name
		uc.finishStage(record, domain.StageClassify, domain.StageSuccess(), started)
		return class, ""
	}

	// The guess itself worked; only the registry lookup did not.
	uc.finishStage(record, domain.StageClassify, domain.StageSuccess(), started)
	record.ClassName = name

	if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, fmt.Sprintf("resolve class %q: %v", name, err)
	}
	if uc.opts.AutoSeedClasses {
		seeded, seedErr := uc.seedClass(ctx, name)
		if seedErr != nil {
			return nil, fmt.Sprintf("class %q not registered and schema seeding failed: %v", name, seedErr)
		}
		record.ClassName = seeded.Name
		return seeded, ""
	}
	return nil, fmt.Sprintf("class %q not registered", name)
}

// classifyFallback resolves the configured fallback class after a classify
// failure, or reports why extraction has nothing to work with.
func (uc *ProcessDocumentUseCase) classifyFallback(ctx context.Context, record *domain.ProcessingRecord, cause string) (*domain.DocumentClass, string) {
	if uc.opts.FallbackClass == "" {
		return nil, cause
	}
	class, err := uc.classes.Get(ctx, uc.opts.FallbackClass)
	if err != nil {
		return nil, fmt.Sprintf("%s; fallback class %q: %v", cause, uc.opts.FallbackClass, err)
	}
	record.ClassName = class.Name
	return class, ""
}

// seedClass asks the gateway for a starter schema and registers it so later
// documents of the same class extract immediately.
func (uc *ProcessDocumentUseCase) seedClass(ctx context.Context, name string) (*domain.DocumentClass, error) {
	fields, err := uc.gateway.SuggestSchema(ctx, name)
	if err != nil {
		return nil, err
	}
	class := domain.DocumentClass{Name: name, Fields: fields}.Normalized()
	if err := class.Validate(); err != nil {
		return nil, err
	}
	if err := uc.classes.Upsert(ctx, class); err != nil {
		return nil, err
	}
	return &class, nil
}

func (uc *ProcessDocumentUseCase) extractFields(ctx context.Context, doc domain.DocumentContent, class *domain.DocumentClass, skipReason string, gate *capabilityGate, record *domain.ProcessingRecord) *domain.ExtractionResult {
	started := time.Now()

	if class == nil {
		reason := skipReason
		if reason == "" {
			reason = "no document class resolved"
		}
		uc.finishStage(record, domain.StageExtract, domain.StageFailure(domain.FailureMalformed, reason), started)
		return nil
	}
	// A zero-field class extracts nothing and cannot fail.
	if len(class.Fields) == 0 {
		uc.finishStage(record, domain.StageExtract, domain.StageSuccess(), started)
		return &domain.ExtractionResult{Fields: []domain.FieldAnswer{}}
	}
	if reason, blocked := gate.blocked(domain.StageExtract); blocked {
		uc.finishStage(record, domain.StageExtract, domain.StageFailure(domain.FailureUnavailable, reason), started)
		return nil
	}

	extraction, err := uc.gateway.ExtractFields(ctx, doc, *class)
	if err != nil {
		uc.finishStage(record, domain.StageExtract, uc.failStage(domain.StageExtract, err, gate), started)
		return nil
	}
	uc.finishStage(record, domain.StageExtract, domain.StageSuccess(), started)
	return extraction
}

func (uc *ProcessDocumentUseCase) runOCR(ctx context.Context, doc domain.DocumentContent, gate *capabilityGate, record *domain.ProcessingRecord) string {
	started := time.Now()

	if reason, blocked := gate.blocked(domain.StageOCR); blocked {
		uc.finishStage(record, domain.StageOCR, domain.StageFailure(domain.FailureUnavailable, reason), started)
		return ""
	}

	text, err := uc.gateway.OCR(ctx, doc)
	if err != nil {
		uc.finishStage(record, domain.StageOCR, uc.failStage(domain.StageOCR, err, gate), started)
		return ""
	}
	uc.finishStage(record, domain.StageOCR, domain.StageSuccess(), started)
	return text
}

// summarize prefers OCR text, then locally extracted text, then hands the raw
// document to the gateway.
func (uc *ProcessDocumentUseCase) summarize(ctx context.Context, doc domain.DocumentContent, ocrText string, gate *capabilityGate, record *domain.ProcessingRecord) string {
	started := time.Now()

	if reason, blocked := gate.blocked(domain.StageSummarize); blocked {
		uc.finishStage(record, domain.StageSummarize, domain.StageFailure(domain.FailureUnavailable, reason), started)
		return ""
	}

	fullText := ocrText
	if fullText == "" && uc.extractor != nil {
		if text, err := uc.extractor.Extract(ctx, doc); err == nil {
			fullText = text
		}
	}
	fullText = truncateText(fullText, uc.opts.SummaryMaxChars)

	summary, err := uc.gateway.Summarize(ctx, doc, fullText)
	if err != nil {
		uc.finishStage(record, domain.StageSummarize, uc.failStage(domain.StageSummarize, err, gate), started)
		return ""
	}
	uc.finishStage(record, domain.StageSummarize, domain.StageSuccess(), started)
	return summary
}

func (uc *ProcessDocumentUseCase) finishStage(record *domain.ProcessingRecord, stage domain.Stage, result domain.StageResult, started time.Time) {
	record.Stages.Set(stage, result)
	uc.observer.ObserveStage(stage, result, time.Since(started))
}

// failStage converts a gateway error into a stage failure and latches
// unavailable capabilities so the rest of the run skips them.
func (uc *ProcessDocumentUseCase) failStage(stage domain.Stage, err error, gate *capabilityGate) domain.StageResult {
	kind, _ := domain.InferenceFailureKind(err)
	if kind == domain.FailureUnavailable {
		gate.latch(stage, err.Error())
	}
	return domain.StageFailure(kind, err.Error())
}

// persistOutcome writes each record independently so one failed write never
// blocks sibling records. The processed marker goes last, and only when every
// prior write landed.
func (uc *ProcessDocumentUseCase) persistOutcome(ctx context.Context, outcome *domain.DocumentOutcome) {
	ref := outcome.Record.Document

	if err := uc.results.UpsertProcessingRecord(ctx, outcome.Record); err != nil {
		outcome.PersistFailures = append(outcome.PersistFailures, fmt.Sprintf("processing record: %v", err))
	}
	if outcome.Record.Extraction != nil {
		if err := uc.results.ReplaceExtractedFields(ctx, ref, outcome.Record.ClassName, outcome.Record.Extraction.Fields); err != nil {
			outcome.PersistFailures = append(outcome.PersistFailures, fmt.Sprintf("extracted fields: %v", err))
		}
	}
	if outcome.OcrSummary != nil {
		if err := uc.results.UpsertOcrSummary(ctx, *outcome.OcrSummary); err != nil {
			outcome.PersistFailures = append(outcome.PersistFailures, fmt.Sprintf("ocr summary: %v", err))
		}
	}

	if len(outcome.PersistFailures) > 0 {
		return
	}
	processed := outcome.Disposition == domain.DispositionSucceeded || uc.opts.MarkFailedProcessed
	if err := uc.results.MarkUploadProcessed(ctx, ref, processed); err != nil {
		outcome.PersistFailures = append(outcome.PersistFailures, fmt.Sprintf("processed marker: %v", err))
	}
}

// truncateText cuts s at a rune boundary at or below max bytes.
func truncateText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
