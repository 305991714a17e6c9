package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dkotenko/document-intake/internal/core/domain"
)

type fakeClassStore struct {
	mu      sync.Mutex
	classes map[string]domain.DocumentClass
	upserts []domain.DocumentClass
	getErr  error
}

func newFakeClassStore(classes ...domain.DocumentClass) *fakeClassStore {
	store := &fakeClassStore{classes: make(map[string]domain.DocumentClass)}
	for _, class := range classes {
		store.classes[class.Name] = class
	}
	return store
}

func (f *fakeClassStore) Get(_ context.Context, name string) (*domain.DocumentClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	class, ok := f.classes[name]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get class", fmt.Errorf("class %s", name))
	}
	copyClass := class
	return &copyClass, nil
}

func (f *fakeClassStore) List(context.Context) ([]domain.DocumentClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DocumentClass, 0, len(f.classes))
	for _, class := range f.classes {
		out = append(out, class)
	}
	return out, nil
}

func (f *fakeClassStore) Upsert(_ context.Context, class domain.DocumentClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes[class.Name] = class
	f.upserts = append(f.upserts, class)
	return nil
}

func (f *fakeClassStore) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.classes[name]; !ok {
		return domain.WrapError(domain.ErrNotFound, "delete class", fmt.Errorf("class %s", name))
	}
	delete(f.classes, name)
	return nil
}

type fakeSource struct {
	docs    []domain.DocumentRef
	data    map[string][]byte
	readErr map[string]error
	listErr error
}

func (f *fakeSource) ListDocuments(_ context.Context, _ string, fn func(domain.DocumentRef) error) error {
	if f.listErr != nil {
		return f.listErr
	}
	for _, ref := range f.docs {
		if err := fn(ref); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) ReadBytes(_ context.Context, ref domain.DocumentRef) ([]byte, error) {
	if err := f.readErr[ref.Name]; err != nil {
		return nil, err
	}
	if data, ok := f.data[ref.Name]; ok {
		return data, nil
	}
	return []byte("content of " + ref.Name), nil
}

func (f *fakeSource) Locate(area, name string) domain.DocumentRef {
	return domain.DocumentRef{Name: name, Ref: area + "/" + name, Area: area}
}

type fakeGateway struct {
	mu              sync.Mutex
	classifyResult  string
	classifyErr     error
	classifyCalls   int
	extractResult   *domain.ExtractionResult
	extractErr      error
	extractCalls    int
	extractClasses  []string
	ocrResult       string
	ocrErr          error
	ocrCalls        int
	summarizeResult string
	summarizeErr    error
	summarizeCalls  int
	summarizeInputs []string
	schemaFields    []domain.FieldPrompt
	schemaErr       error
	schemaCalls     int
}

func (f *fakeGateway) Classify(context.Context, domain.DocumentContent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classifyCalls++
	if f.classifyErr != nil {
		return "", f.classifyErr
	}
	return f.classifyResult, nil
}

func (f *fakeGateway) ExtractFields(_ context.Context, _ domain.DocumentContent, class domain.DocumentClass) (*domain.ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls++
	f.extractClasses = append(f.extractClasses, class.Name)
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	if f.extractResult != nil {
		return f.extractResult, nil
	}
	return &domain.ExtractionResult{Fields: []domain.FieldAnswer{}}, nil
}

func (f *fakeGateway) OCR(context.Context, domain.DocumentContent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ocrCalls++
	if f.ocrErr != nil {
		return "", f.ocrErr
	}
	return f.ocrResult, nil
}

func (f *fakeGateway) Summarize(_ context.Context, _ domain.DocumentContent, fullText string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarizeCalls++
	f.summarizeInputs = append(f.summarizeInputs, fullText)
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return f.summarizeResult, nil
}

func (f *fakeGateway) SuggestSchema(context.Context, string) ([]domain.FieldPrompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemaCalls++
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	return f.schemaFields, nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, domain.DocumentContent) (string, error) {
	return f.text, f.err
}

type markerCall struct {
	ref       domain.DocumentRef
	processed bool
}

type fakeResultStore struct {
	mu             sync.Mutex
	records        map[string]domain.ProcessingRecord
	fields         map[string][]domain.FieldAnswer
	fieldClasses   map[string]string
	fieldWrites    int
	ocr            map[string]domain.OcrSummaryRecord
	tracked        map[string]domain.UploadTrackingEntry
	markerCalls    []markerCall
	processedNames map[string]bool
	recordErr      error
	fieldsErr      error
	ocrErr         error
	trackErr       error
	markErr        error
	namesErr       error
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{
		records:        make(map[string]domain.ProcessingRecord),
		fields:         make(map[string][]domain.FieldAnswer),
		fieldClasses:   make(map[string]string),
		ocr:            make(map[string]domain.OcrSummaryRecord),
		tracked:        make(map[string]domain.UploadTrackingEntry),
		processedNames: make(map[string]bool),
	}
}

func (f *fakeResultStore) UpsertProcessingRecord(_ context.Context, record domain.ProcessingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records[record.Document.Ref] = record
	return nil
}

func (f *fakeResultStore) ReplaceExtractedFields(_ context.Context, ref domain.DocumentRef, className string, fields []domain.FieldAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fieldsErr != nil {
		return f.fieldsErr
	}
	f.fieldWrites++
	f.fields[ref.Ref] = fields
	f.fieldClasses[ref.Ref] = className
	return nil
}

func (f *fakeResultStore) UpsertOcrSummary(_ context.Context, record domain.OcrSummaryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ocrErr != nil {
		return f.ocrErr
	}
	f.ocr[record.FileRef] = record
	return nil
}

func (f *fakeResultStore) TrackUpload(_ context.Context, entry domain.UploadTrackingEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trackErr != nil {
		return f.trackErr
	}
	f.tracked[entry.FileName] = entry
	return nil
}

func (f *fakeResultStore) MarkUploadProcessed(_ context.Context, ref domain.DocumentRef, processed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.markerCalls = append(f.markerCalls, markerCall{ref: ref, processed: processed})
	f.processedNames[ref.Name] = processed
	return nil
}

func (f *fakeResultStore) ProcessedNames(context.Context, string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.namesErr != nil {
		return nil, f.namesErr
	}
	out := make(map[string]bool, len(f.processedNames))
	for name, processed := range f.processedNames {
		if processed {
			out[name] = true
		}
	}
	return out, nil
}

func invoiceClass() domain.DocumentClass {
	return domain.DocumentClass{
		Name: "invoice",
		Fields: []domain.FieldPrompt{
			{Name: "invoice_number", Question: "What is the invoice number?"},
			{Name: "total_amount", Question: "What is the total amount?"},
		},
	}
}

func docRef(name string) domain.DocumentRef {
	return domain.DocumentRef{Name: name, Ref: "uploads/" + name, URL: "file://uploads/" + name, Area: "uploads"}
}

func invoiceExtraction() *domain.ExtractionResult {
	return &domain.ExtractionResult{Fields: []domain.FieldAnswer{
		{Name: "invoice_number", Value: domain.StringValue("INV-100")},
		{Name: "total_amount", Value: domain.StringValue("250.00")},
	}}
}

func workingGateway() *fakeGateway {
	return &fakeGateway{
		classifyResult:  "invoice",
		extractResult:   invoiceExtraction(),
		ocrResult:       "full document text",
		summarizeResult: "a short summary",
	}
}

func newPipeline(classes *fakeClassStore, source *fakeSource, gateway *fakeGateway, results *fakeResultStore, opts PipelineOptions) *ProcessDocumentUseCase {
	return NewProcessDocumentUseCase(classes, source, gateway, &fakeExtractor{}, results, nil, opts)
}

func TestProcessOneKnownClassPersistsAllOutcomes(t *testing.T) {
	classes := newFakeClassStore(invoiceClass())
	gateway := workingGateway()
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{})

	ref := docRef("inv001.pdf")
	outcome, err := uc.ProcessOne(context.Background(), ref, "invoice")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if outcome.Disposition != domain.DispositionSucceeded {
		t.Fatalf("expected succeeded, got %s", outcome.Disposition)
	}
	for _, stage := range domain.Stages() {
		if got := outcome.Record.Stages.Get(stage).State; got != domain.StageSucceeded {
			t.Fatalf("expected stage %s success, got %s", stage, got)
		}
	}
	if gateway.classifyCalls != 0 {
		t.Fatalf("expected classify skipped for a known class, got %d calls", gateway.classifyCalls)
	}
	if outcome.Record.ClassName != "invoice" {
		t.Fatalf("expected class invoice, got %q", outcome.Record.ClassName)
	}

	if _, ok := results.records[ref.Ref]; !ok {
		t.Fatal("expected processing record persisted")
	}
	if got := len(results.fields[ref.Ref]); got != 2 {
		t.Fatalf("expected 2 field rows, got %d", got)
	}
	if results.fieldClasses[ref.Ref] != "invoice" {
		t.Fatalf("expected fields stored under invoice, got %q", results.fieldClasses[ref.Ref])
	}
	if results.ocr[ref.Ref].Summary != "a short summary" {
		t.Fatalf("expected summary persisted, got %q", results.ocr[ref.Ref].Summary)
	}
	if len(results.markerCalls) != 1 || !results.markerCalls[0].processed {
		t.Fatalf("expected processed marker true, got %+v", results.markerCalls)
	}
	if len(outcome.PersistFailures) != 0 {
		t.Fatalf("expected no persist failures, got %v", outcome.PersistFailures)
	}
}

func TestProcessOneAutoClassifyLooksUpRegisteredClass(t *testing.T) {
	classes := newFakeClassStore(invoiceClass())
	gateway := workingGateway()
	gateway.classifyResult = "  Invoice "
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{})

	outcome, err := uc.ProcessOne(context.Background(), docRef("inv002.pdf"), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gateway.classifyCalls != 1 {
		t.Fatalf("expected 1 classify call, got %d", gateway.classifyCalls)
	}
	if outcome.Record.ClassName != "invoice" {
		t.Fatalf("expected normalized class invoice, got %q", outcome.Record.ClassName)
	}
	if len(gateway.extractClasses) != 1 || gateway.extractClasses[0] != "invoice" {
		t.Fatalf("expected extraction against invoice, got %v", gateway.extractClasses)
	}
}

func TestProcessOneClassifyFailureFallsBackToConfiguredClass(t *testing.T) {
	other := domain.DocumentClass{
		Name:   "other",
		Fields: []domain.FieldPrompt{{Name: "subject", Question: "What is the document about?"}},
	}
	classes := newFakeClassStore(other)
	gateway := workingGateway()
	gateway.classifyErr = domain.NewInferenceError(domain.FailureMalformed, "classify", errors.New("unreadable"))
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{FallbackClass: "other"})

	outcome, err := uc.ProcessOne(context.Background(), docRef("scan.pdf"), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	classify := outcome.Record.Stages.Classify
	if classify.State != domain.StageFailed || classify.Kind != domain.FailureMalformed {
		t.Fatalf("expected classify malformed failure, got %+v", classify)
	}
	if outcome.Record.Stages.Extract.State != domain.StageSucceeded {
		t.Fatalf("expected extract success via fallback, got %+v", outcome.Record.Stages.Extract)
	}
	if outcome.Record.ClassName != "other" {
		t.Fatalf("expected fallback class other, got %q", outcome.Record.ClassName)
	}
	if outcome.Disposition != domain.DispositionPartiallyFailed {
		t.Fatalf("expected partially failed, got %s", outcome.Disposition)
	}
	if len(results.markerCalls) != 1 || results.markerCalls[0].processed {
		t.Fatalf("expected processed marker false for a failed stage, got %+v", results.markerCalls)
	}
}

func TestProcessOneUnknownClassSkipsExtraction(t *testing.T) {
	classes := newFakeClassStore()
	gateway := workingGateway()
	gateway.classifyResult = "mystery"
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{})

	outcome, err := uc.ProcessOne(context.Background(), docRef("odd.pdf"), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if outcome.Record.Stages.Classify.State != domain.StageSucceeded {
		t.Fatalf("expected classify success, got %+v", outcome.Record.Stages.Classify)
	}
	extract := outcome.Record.Stages.Extract
	if extract.State != domain.StageFailed || extract.Kind != domain.FailureMalformed {
		t.Fatalf("expected extract malformed failure, got %+v", extract)
	}
	if !strings.Contains(extract.Reason, "not registered") {
		t.Fatalf("expected unregistered-class reason, got %q", extract.Reason)
	}
	if gateway.extractCalls != 0 {
		t.Fatalf("expected no extract call, got %d", gateway.extractCalls)
	}
	if results.fieldWrites != 0 {
		t.Fatalf("expected no field writes, got %d", results.fieldWrites)
	}
	if outcome.Record.Stages.OCR.State != domain.StageSucceeded || outcome.Record.Stages.Summarize.State != domain.StageSucceeded {
		t.Fatal("expected ocr and summarize to still run")
	}
}

func TestProcessOneSeedsUnknownClassWhenEnabled(t *testing.T) {
	classes := newFakeClassStore()
	gateway := workingGateway()
	gateway.classifyResult = "receipt"
	gateway.schemaFields = []domain.FieldPrompt{{Name: "vendor", Question: "Who issued the receipt?"}}
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{AutoSeedClasses: true})

	outcome, err := uc.ProcessOne(context.Background(), docRef("rcpt.pdf"), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(classes.upserts) != 1 || classes.upserts[0].Name != "receipt" {
		t.Fatalf("expected receipt seeded, got %+v", classes.upserts)
	}
	if outcome.Record.Stages.Extract.State != domain.StageSucceeded {
		t.Fatalf("expected extract success against seeded class, got %+v", outcome.Record.Stages.Extract)
	}
	if outcome.Record.ClassName != "receipt" {
		t.Fatalf("expected class receipt, got %q", outcome.Record.ClassName)
	}
}

func TestProcessOneZeroFieldClassStillRunsOcrAndSummary(t *testing.T) {
	memo := domain.DocumentClass{Name: "memo"}
	classes := newFakeClassStore(memo)
	gateway := workingGateway()
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{})

	ref := docRef("memo.txt")
	outcome, err := uc.ProcessOne(context.Background(), ref, "memo")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gateway.extractCalls != 0 {
		t.Fatalf("expected no gateway extraction for a zero-field class, got %d", gateway.extractCalls)
	}
	if outcome.Record.Extraction == nil || len(outcome.Record.Extraction.Fields) != 0 {
		t.Fatalf("expected empty extraction result, got %+v", outcome.Record.Extraction)
	}
	if results.fieldWrites != 1 {
		t.Fatalf("expected field rows replaced once, got %d", results.fieldWrites)
	}
	if outcome.Disposition != domain.DispositionSucceeded {
		t.Fatalf("expected succeeded, got %s", outcome.Disposition)
	}
	if len(results.markerCalls) != 1 || !results.markerCalls[0].processed {
		t.Fatalf("expected processed marker true, got %+v", results.markerCalls)
	}
}

func TestProcessOneUnsupportedFileRecordsFailuresAndStaysUnprocessed(t *testing.T) {
	classes := newFakeClassStore()
	gateway := &fakeGateway{
		classifyErr:  domain.NewInferenceError(domain.FailureMalformed, "classify", errors.New("unsupported format")),
		ocrErr:       domain.NewInferenceError(domain.FailureMalformed, "ocr", errors.New("unsupported format")),
		summarizeErr: domain.NewInferenceError(domain.FailureMalformed, "summarize", errors.New("unsupported format")),
	}
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{})

	ref := docRef("bad.xyz")
	outcome, err := uc.ProcessOne(context.Background(), ref, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, stage := range domain.Stages() {
		if got := outcome.Record.Stages.Get(stage).State; got != domain.StageFailed {
			t.Fatalf("expected stage %s failed, got %s", stage, got)
		}
	}
	if outcome.Disposition != domain.DispositionFullyFailed {
		t.Fatalf("expected fully failed, got %s", outcome.Disposition)
	}
	if _, ok := results.records[ref.Ref]; !ok {
		t.Fatal("expected failed outcome still persisted")
	}
	if len(results.markerCalls) != 1 || results.markerCalls[0].processed {
		t.Fatalf("expected processed marker false, got %+v", results.markerCalls)
	}
}

func TestProcessWithGateLatchesUnavailableCapabilityForTheRun(t *testing.T) {
	classes := newFakeClassStore(invoiceClass())
	gateway := workingGateway()
	gateway.ocrErr = domain.NewInferenceError(domain.FailureUnavailable, "ocr", errors.New("ocr backend disabled"))
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{})

	gate := newCapabilityGate()
	first, err := uc.processWithGate(context.Background(), docRef("a.pdf"), "invoice", gate)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := uc.processWithGate(context.Background(), docRef("b.pdf"), "invoice", gate)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gateway.ocrCalls != 1 {
		t.Fatalf("expected a single ocr call for the whole run, got %d", gateway.ocrCalls)
	}
	if first.Record.Stages.OCR.Kind != domain.FailureUnavailable {
		t.Fatalf("expected unavailable failure on first document, got %+v", first.Record.Stages.OCR)
	}
	ocr := second.Record.Stages.OCR
	if ocr.State != domain.StageFailed || ocr.Kind != domain.FailureUnavailable {
		t.Fatalf("expected latched unavailable failure on second document, got %+v", ocr)
	}
}

func TestProcessOnePersistFailureSkipsProcessedMarker(t *testing.T) {
	classes := newFakeClassStore(invoiceClass())
	results := newFakeResultStore()
	results.recordErr = errors.New("connection reset")
	uc := newPipeline(classes, &fakeSource{}, workingGateway(), results, PipelineOptions{})

	outcome, err := uc.ProcessOne(context.Background(), docRef("inv003.pdf"), "invoice")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(outcome.PersistFailures) == 0 {
		t.Fatal("expected persist failure recorded")
	}
	if len(results.markerCalls) != 0 {
		t.Fatalf("expected no marker write after a persist failure, got %+v", results.markerCalls)
	}
	if outcome.Disposition != domain.DispositionSucceeded {
		t.Fatalf("expected stage disposition unaffected, got %s", outcome.Disposition)
	}
}

func TestProcessOneReadFailureFailsEveryStage(t *testing.T) {
	classes := newFakeClassStore(invoiceClass())
	gateway := workingGateway()
	source := &fakeSource{readErr: map[string]error{"gone.pdf": errors.New("no such file")}}
	results := newFakeResultStore()
	uc := newPipeline(classes, source, gateway, results, PipelineOptions{})

	ref := docRef("gone.pdf")
	outcome, err := uc.ProcessOne(context.Background(), ref, "invoice")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, stage := range domain.Stages() {
		result := outcome.Record.Stages.Get(stage)
		if result.State != domain.StageFailed {
			t.Fatalf("expected stage %s failed, got %s", stage, result.State)
		}
		if !strings.Contains(result.Reason, "read document") {
			t.Fatalf("expected read failure reason, got %q", result.Reason)
		}
	}
	if gateway.classifyCalls+gateway.extractCalls+gateway.ocrCalls+gateway.summarizeCalls != 0 {
		t.Fatal("expected no gateway calls for an unreadable document")
	}
	if _, ok := results.records[ref.Ref]; !ok {
		t.Fatal("expected outcome persisted")
	}
}

func TestProcessOneExplicitUnknownClassReturnsError(t *testing.T) {
	results := newFakeResultStore()
	uc := newPipeline(newFakeClassStore(), &fakeSource{}, workingGateway(), results, PipelineOptions{})

	_, err := uc.ProcessOne(context.Background(), docRef("inv004.pdf"), "ghost")
	if err == nil {
		t.Fatal("expected error for an unknown explicit class")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found kind, got %v", err)
	}
	if len(results.records) != 0 {
		t.Fatal("expected nothing persisted")
	}
}

func TestProcessOneMarkFailedProcessedPolicy(t *testing.T) {
	classes := newFakeClassStore(invoiceClass())
	gateway := workingGateway()
	gateway.ocrErr = domain.NewInferenceError(domain.FailureMalformed, "ocr", errors.New("no pages"))
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{MarkFailedProcessed: true})

	outcome, err := uc.ProcessOne(context.Background(), docRef("inv005.pdf"), "invoice")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if outcome.Disposition != domain.DispositionPartiallyFailed {
		t.Fatalf("expected partially failed, got %s", outcome.Disposition)
	}
	if len(results.markerCalls) != 1 || !results.markerCalls[0].processed {
		t.Fatalf("expected processed marker true under MarkFailedProcessed, got %+v", results.markerCalls)
	}
}

func TestSummarizePrefersOcrTextOverLocalText(t *testing.T) {
	classes := newFakeClassStore(invoiceClass())
	gateway := workingGateway()
	gateway.ocrResult = "ocr text"
	results := newFakeResultStore()
	uc := NewProcessDocumentUseCase(classes, &fakeSource{}, gateway, &fakeExtractor{text: "local text"}, results, nil, PipelineOptions{})

	if _, err := uc.ProcessOne(context.Background(), docRef("inv006.pdf"), "invoice"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(gateway.summarizeInputs) != 1 || gateway.summarizeInputs[0] != "ocr text" {
		t.Fatalf("expected summarizer fed ocr text, got %v", gateway.summarizeInputs)
	}
}

func TestSummarizeFallsBackToLocalTextWhenOcrFails(t *testing.T) {
	classes := newFakeClassStore(invoiceClass())
	gateway := workingGateway()
	gateway.ocrErr = domain.NewInferenceError(domain.FailureTransient, "ocr", errors.New("timeout"))
	results := newFakeResultStore()
	uc := NewProcessDocumentUseCase(classes, &fakeSource{}, gateway, &fakeExtractor{text: "local text"}, results, nil, PipelineOptions{})

	outcome, err := uc.ProcessOne(context.Background(), docRef("inv007.pdf"), "invoice")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(gateway.summarizeInputs) != 1 || gateway.summarizeInputs[0] != "local text" {
		t.Fatalf("expected summarizer fed locally extracted text, got %v", gateway.summarizeInputs)
	}
	if outcome.Record.Stages.Summarize.State != domain.StageSucceeded {
		t.Fatalf("expected summarize success, got %+v", outcome.Record.Stages.Summarize)
	}
}

func TestSummaryInputTruncatedToLimit(t *testing.T) {
	classes := newFakeClassStore(invoiceClass())
	gateway := workingGateway()
	gateway.ocrResult = strings.Repeat("a", 100)
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{SummaryMaxChars: 10})

	if _, err := uc.ProcessOne(context.Background(), docRef("inv008.pdf"), "invoice"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := len(gateway.summarizeInputs[0]); got != 10 {
		t.Fatalf("expected summary input capped at 10 bytes, got %d", got)
	}
}

func TestTruncateTextKeepsRuneBoundary(t *testing.T) {
	// "né" is 3 bytes; cutting at 2 would split the accent.
	if got := truncateText("né", 2); got != "n" {
		t.Fatalf("expected cut before the multibyte rune, got %q", got)
	}
	if got := truncateText("abc", 5); got != "abc" {
		t.Fatalf("expected untouched text, got %q", got)
	}
}

func TestProcessOneReprocessReplacesFieldsWithoutDuplication(t *testing.T) {
	classes := newFakeClassStore(invoiceClass())
	gateway := workingGateway()
	results := newFakeResultStore()
	uc := newPipeline(classes, &fakeSource{}, gateway, results, PipelineOptions{})

	ref := docRef("inv009.pdf")
	for i := 0; i < 2; i++ {
		if _, err := uc.ProcessOne(context.Background(), ref, "invoice"); err != nil {
			t.Fatalf("run %d: expected no error, got %v", i, err)
		}
	}
	if results.fieldWrites != 2 {
		t.Fatalf("expected 2 replace calls, got %d", results.fieldWrites)
	}
	if got := len(results.fields[ref.Ref]); got != 2 {
		t.Fatalf("expected 2 field rows after reprocess, got %d", got)
	}
}
