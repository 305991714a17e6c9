package domain

import "time"

type Disposition string

const (
	DispositionSucceeded       Disposition = "succeeded"
	DispositionPartiallyFailed Disposition = "partially_failed"
	DispositionFullyFailed     Disposition = "fully_failed"
)

// DocumentOutcome is the caller-facing result of a single pipeline run.
// PersistFailures lists per-record persistence errors that did not abort
// sibling writes.
type DocumentOutcome struct {
	Record          ProcessingRecord  `json:"record"`
	OcrSummary      *OcrSummaryRecord `json:"ocr_summary,omitempty"`
	Disposition     Disposition       `json:"disposition"`
	PersistFailures []string          `json:"persist_failures,omitempty"`
}

// BatchItem condenses one document's outcome for the batch report.
type BatchItem struct {
	Document        DocumentRef   `json:"document"`
	ClassName       string        `json:"class_name,omitempty"`
	Disposition     Disposition   `json:"disposition"`
	Stages          StageOutcomes `json:"stages"`
	FieldCount      int           `json:"field_count"`
	OCRChars        int           `json:"ocr_chars"`
	SummaryChars    int           `json:"summary_chars"`
	PersistFailures []string      `json:"persist_failures,omitempty"`
}

// BatchReport aggregates one batch run. Items follow enumeration order, not
// completion order, so reports stay diffable across reruns. Enumerated counts
// only documents handed to the pipeline; Skipped counts documents filtered
// out by the resumability check.
type BatchReport struct {
	RunID           string      `json:"run_id"`
	Area            string      `json:"area"`
	ClassName       string      `json:"class_name,omitempty"`
	Concurrency     int         `json:"concurrency"`
	Force           bool        `json:"force"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
	Canceled        bool        `json:"canceled,omitempty"`
	Enumerated      int         `json:"enumerated"`
	Skipped         int         `json:"skipped"`
	Succeeded       int         `json:"succeeded"`
	PartiallyFailed int         `json:"partially_failed"`
	FullyFailed     int         `json:"fully_failed"`
	Items           []BatchItem `json:"items"`
}

// BatchRequest parameterizes one batch run. An empty ClassName means
// auto-classify per document; Concurrency 0 picks the configured default;
// Force disables the resumability filter.
type BatchRequest struct {
	Area        string `json:"area"`
	ClassName   string `json:"class_name,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

// HistoryFilter narrows history queries. The zero value matches everything.
type HistoryFilter struct {
	Classes      []string `json:"classes,omitempty"`
	AreaContains string   `json:"area_contains,omitempty"`
	NameContains string   `json:"name_contains,omitempty"`
}

// ClassCount is the per-class document tally shown by the history view.
type ClassCount struct {
	ClassName string `json:"class_name"`
	Documents int    `json:"documents"`
}

// ExtractedFieldRow is the normalized per-field projection used by history
// export. One row per field per document, replaced on reprocess.
type ExtractedFieldRow struct {
	FileURL    string     `json:"file_url,omitempty"`
	FileRef    string     `json:"file_ref"`
	ClassName  string     `json:"class_name"`
	FieldName  string     `json:"field_name"`
	FieldValue FieldValue `json:"field_value"`
	Confidence *float64   `json:"confidence,omitempty"`
}
