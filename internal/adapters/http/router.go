package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/dkotenko/document-intake/internal/config"
	"github.com/dkotenko/document-intake/internal/core/domain"
	"github.com/dkotenko/document-intake/internal/core/ports"
)

// exporter produces downloadable projections of processing history.
type exporter interface {
	ExportXLSX(ctx context.Context, filter domain.HistoryFilter) ([]byte, error)
	ExportCSV(ctx context.Context, filter domain.HistoryFilter) ([]byte, error)
}

type Router struct {
	cfg       config.Config
	classes   ports.ClassAdmin
	uploads   ports.UploadService
	processor ports.DocumentProcessor
	batches   ports.BatchRunner
	history   ports.HistoryReader
	exports   exporter
	source    ports.DocumentSource
}

func NewRouter(
	cfg config.Config,
	classes ports.ClassAdmin,
	uploads ports.UploadService,
	processor ports.DocumentProcessor,
	batches ports.BatchRunner,
	history ports.HistoryReader,
	exports exporter,
	source ports.DocumentSource,
) *Router {
	return &Router{
		cfg:       cfg,
		classes:   classes,
		uploads:   uploads,
		processor: processor,
		batches:   batches,
		history:   history,
		exports:   exports,
		source:    source,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/classes", rt.classCollection)
	mux.HandleFunc("/v1/classes/", rt.classItem)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/process", rt.processDocument)
	mux.HandleFunc("/v1/batches", rt.runBatch)
	mux.HandleFunc("/v1/history", rt.historyRecords)
	mux.HandleFunc("/v1/history/classes", rt.historyClassCounts)
	mux.HandleFunc("/v1/history/export", rt.exportHistory)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) classCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		classes, err := rt.classes.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if classes == nil {
			classes = []domain.DocumentClass{}
		}
		writeJSON(w, http.StatusOK, classes)
	case http.MethodPost:
		var class domain.DocumentClass
		if err := json.NewDecoder(r.Body).Decode(&class); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		saved, err := rt.classes.Upsert(r.Context(), class)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) classItem(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/v1/classes/")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "class name is required"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		class, err := rt.classes.Get(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, class)
	case http.MethodPut:
		var class domain.DocumentClass
		if err := json.NewDecoder(r.Body).Decode(&class); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		// The path segment names the class; a conflicting body name is ignored.
		class.Name = name
		saved, err := rt.classes.Upsert(r.Context(), class)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	case http.MethodDelete:
		if err := rt.classes.Delete(r.Context(), name); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	entry, err := rt.uploads.Upload(
		r.Context(),
		r.FormValue("area"),
		fileHeader.Filename,
		r.FormValue("class"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, entry)
}

func (rt *Router) processDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Name  string `json:"name"`
		Area  string `json:"area"`
		Class string `json:"class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document name is required"})
		return
	}
	if req.Area == "" {
		req.Area = rt.cfg.UploadArea
	}

	ref := rt.source.Locate(req.Area, req.Name)
	outcome, err := rt.processor.ProcessOne(r.Context(), ref, req.Class)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) runBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Area == "" {
		req.Area = rt.cfg.UploadArea
	}

	report, err := rt.batches.Run(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) historyRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	records, err := rt.history.Records(r.Context(), historyFilterFromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.ProcessingRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (rt *Router) historyClassCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	counts, err := rt.history.ClassCounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if counts == nil {
		counts = []domain.ClassCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (rt *Router) exportHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	filter := historyFilterFromQuery(r.URL.Query())
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "xlsx"
	}

	var (
		data        []byte
		err         error
		contentType string
		filename    string
	)
	switch format {
	case "xlsx":
		data, err = rt.exports.ExportXLSX(r.Context(), filter)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = "processing_history.xlsx"
	case "csv":
		data, err = rt.exports.ExportCSV(r.Context(), filter)
		contentType = "text/csv; charset=utf-8"
		filename = "extracted_fields.csv"
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "format must be xlsx or csv"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func historyFilterFromQuery(query url.Values) domain.HistoryFilter {
	return domain.HistoryFilter{
		Classes:      query["class"],
		AreaContains: query.Get("area"),
		NameContains: query.Get("name"),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
