package domain

import "time"

// Stage identifies one of the four pipeline stages.
type Stage string

const (
	StageClassify  Stage = "classify"
	StageExtract   Stage = "extract"
	StageOCR       Stage = "ocr"
	StageSummarize Stage = "summarize"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageClassify, StageExtract, StageOCR, StageSummarize}
}

type StageState string

const (
	StagePending   StageState = "pending"
	StageSucceeded StageState = "success"
	StageFailed    StageState = "failed"
)

// StageResult is the terminal outcome of one stage attempt. Kind and Reason
// are set only on failure; a skipped stage is recorded as failed with the
// skip reason.
type StageResult struct {
	State  StageState  `json:"state"`
	Kind   FailureKind `json:"kind,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

func StageSuccess() StageResult {
	return StageResult{State: StageSucceeded}
}

func StageFailure(kind FailureKind, reason string) StageResult {
	return StageResult{State: StageFailed, Kind: kind, Reason: reason}
}

// StageOutcomes holds per-stage results for one pipeline run. Stages start
// pending and each receives exactly one terminal result.
type StageOutcomes struct {
	Classify  StageResult `json:"classify"`
	Extract   StageResult `json:"extract"`
	OCR       StageResult `json:"ocr"`
	Summarize StageResult `json:"summarize"`
}

func (s StageOutcomes) Get(stage Stage) StageResult {
	switch stage {
	case StageClassify:
		return s.Classify
	case StageExtract:
		return s.Extract
	case StageOCR:
		return s.OCR
	case StageSummarize:
		return s.Summarize
	default:
		return StageResult{}
	}
}

func (s *StageOutcomes) Set(stage Stage, result StageResult) {
	switch stage {
	case StageClassify:
		s.Classify = result
	case StageExtract:
		s.Extract = result
	case StageOCR:
		s.OCR = result
	case StageSummarize:
		s.Summarize = result
	}
}

// Disposition classifies a finished run: succeeded when no stage failed,
// fully failed when no stage succeeded, partially failed otherwise.
func (s StageOutcomes) Disposition() Disposition {
	succeeded, failed := 0, 0
	for _, stage := range Stages() {
		switch s.Get(stage).State {
		case StageSucceeded:
			succeeded++
		case StageFailed:
			failed++
		}
	}

	switch {
	case failed == 0:
		return DispositionSucceeded
	case succeeded == 0:
		return DispositionFullyFailed
	default:
		return DispositionPartiallyFailed
	}
}

// DocumentRef identifies one source document inside a storage area.
// Immutable once produced by enumeration.
type DocumentRef struct {
	Name string `json:"name"`
	Ref  string `json:"ref"`
	URL  string `json:"url,omitempty"`
	Area string `json:"area"`
}

// DocumentContent couples a document reference with its raw bytes so the
// bytes are read once per pipeline run.
type DocumentContent struct {
	Ref  DocumentRef
	Data []byte
}

// FieldAnswer is one extracted field, kept in class schema order.
// Confidence stays nil until the backend starts reporting it.
type FieldAnswer struct {
	Name       string     `json:"name"`
	Value      FieldValue `json:"value"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// ExtractionResult is the ordered set of extracted field answers.
type ExtractionResult struct {
	Fields []FieldAnswer `json:"fields"`
}

// ProcessingRecord is the durable outcome of one document's pipeline run.
// Extraction is non-nil only when the extract stage succeeded.
type ProcessingRecord struct {
	Document    DocumentRef       `json:"document"`
	ClassName   string            `json:"class_name,omitempty"`
	Extraction  *ExtractionResult `json:"extraction,omitempty"`
	Stages      StageOutcomes     `json:"stages"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// UploadTrackingEntry tracks a document's pending->processed lifecycle.
// Reprocessing and re-upload may reset Processed to false.
type UploadTrackingEntry struct {
	FileName   string    `json:"file_name"`
	FileRef    string    `json:"file_ref"`
	SourceArea string    `json:"source_area"`
	Processed  bool      `json:"processed"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// OcrSummaryRecord stores full-text OCR output and the generated summary.
type OcrSummaryRecord struct {
	FileName    string    `json:"file_name"`
	FileRef     string    `json:"file_ref"`
	OCRText     string    `json:"ocr_text"`
	Summary     string    `json:"summary"`
	ProcessedAt time.Time `json:"processed_at"`
}

// UploadEvent rides the message queue from the api to the worker.
type UploadEvent struct {
	FileName  string `json:"file_name"`
	Area      string `json:"area"`
	ClassName string `json:"class_name,omitempty"`
}
