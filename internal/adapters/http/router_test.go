package httpadapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dkotenko/document-intake/internal/config"
	"github.com/dkotenko/document-intake/internal/core/domain"
)

type classAdminStub struct {
	classes []domain.DocumentClass
	upserts []domain.DocumentClass
	deletes []string
	err     error
}

func (s *classAdminStub) Get(_ context.Context, name string) (*domain.DocumentClass, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.classes {
		if s.classes[i].Name == name {
			return &s.classes[i], nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get class", fmt.Errorf("class %q not found", name))
}

func (s *classAdminStub) List(_ context.Context) ([]domain.DocumentClass, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.classes, nil
}

func (s *classAdminStub) Upsert(_ context.Context, class domain.DocumentClass) (*domain.DocumentClass, error) {
	if s.err != nil {
		return nil, s.err
	}
	saved := class.Normalized()
	saved.UpdatedAt = time.Now().UTC()
	s.upserts = append(s.upserts, saved)
	return &saved, nil
}

func (s *classAdminStub) Delete(_ context.Context, name string) error {
	if s.err != nil {
		return s.err
	}
	s.deletes = append(s.deletes, name)
	return nil
}

type uploadStub struct {
	area      string
	filename  string
	className string
	body      []byte
	err       error
}

func (s *uploadStub) Upload(_ context.Context, area, filename, className string, body io.Reader) (*domain.UploadTrackingEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	s.area = area
	s.filename = filename
	s.className = className
	s.body = raw
	return &domain.UploadTrackingEntry{
		FileName:   filename,
		FileRef:    area + "/" + filename,
		SourceArea: area,
		UploadedAt: time.Now().UTC(),
	}, nil
}

type processorStub struct {
	ref       domain.DocumentRef
	className string
	outcome   *domain.DocumentOutcome
	err       error
}

func (s *processorStub) ProcessOne(_ context.Context, ref domain.DocumentRef, className string) (*domain.DocumentOutcome, error) {
	s.ref = ref
	s.className = className
	if s.err != nil {
		return nil, s.err
	}
	if s.outcome != nil {
		return s.outcome, nil
	}
	record := domain.ProcessingRecord{Document: ref, ClassName: className, ProcessedAt: time.Now().UTC()}
	for _, stage := range domain.Stages() {
		record.Stages.Set(stage, domain.StageSuccess())
	}
	return &domain.DocumentOutcome{Record: record, Disposition: record.Stages.Disposition()}, nil
}

type batchStub struct {
	req    domain.BatchRequest
	report *domain.BatchReport
	err    error
}

func (s *batchStub) Run(_ context.Context, req domain.BatchRequest) (*domain.BatchReport, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	if s.report != nil {
		return s.report, nil
	}
	return &domain.BatchReport{
		RunID:       "run-1",
		Area:        req.Area,
		ClassName:   req.ClassName,
		Concurrency: req.Concurrency,
		StartedAt:   time.Now().UTC(),
		FinishedAt:  time.Now().UTC(),
	}, nil
}

type historyStub struct {
	records    []domain.ProcessingRecord
	counts     []domain.ClassCount
	lastFilter domain.HistoryFilter
	err        error
}

func (s *historyStub) Records(_ context.Context, filter domain.HistoryFilter) ([]domain.ProcessingRecord, error) {
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func (s *historyStub) ClassCounts(_ context.Context) ([]domain.ClassCount, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.counts, nil
}

type exportStub struct {
	xlsx       []byte
	csv        []byte
	lastFilter domain.HistoryFilter
	err        error
}

func (s *exportStub) ExportXLSX(_ context.Context, filter domain.HistoryFilter) ([]byte, error) {
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.xlsx, nil
}

func (s *exportStub) ExportCSV(_ context.Context, filter domain.HistoryFilter) ([]byte, error) {
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.csv, nil
}

type sourceStub struct{}

func (sourceStub) ListDocuments(_ context.Context, _ string, _ func(domain.DocumentRef) error) error {
	return nil
}

func (sourceStub) ReadBytes(_ context.Context, _ domain.DocumentRef) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (sourceStub) Locate(area, name string) domain.DocumentRef {
	return domain.DocumentRef{Name: name, Ref: area + "/" + name, Area: area}
}

type routerFixture struct {
	classes   *classAdminStub
	uploads   *uploadStub
	processor *processorStub
	batches   *batchStub
	history   *historyStub
	exports   *exportStub
}

func newFixture() *routerFixture {
	return &routerFixture{
		classes:   &classAdminStub{},
		uploads:   &uploadStub{},
		processor: &processorStub{},
		batches:   &batchStub{},
		history:   &historyStub{},
		exports:   &exportStub{xlsx: []byte("xlsx-bytes"), csv: []byte("csv-bytes")},
	}
}

func (f *routerFixture) handler(cfg config.Config) http.Handler {
	return NewRouter(
		cfg,
		f.classes,
		f.uploads,
		f.processor,
		f.batches,
		f.history,
		f.exports,
		sourceStub{},
	).Handler()
}
