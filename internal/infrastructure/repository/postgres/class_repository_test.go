package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dkotenko/document-intake/internal/core/domain"
)

func newClassRepoWithMock(t *testing.T) (*ClassRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ClassRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetClassReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newClassRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT class_name, fields").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetClassUnmarshalsFieldPrompts(t *testing.T) {
	repo, mock, done := newClassRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"class_name", "fields", "created_at", "updated_at"}).
		AddRow("invoice", []byte(`[{"name":"total_amount","question":"What is the total amount?"}]`), now, now)
	mock.ExpectQuery("SELECT class_name, fields").
		WithArgs("invoice").
		WillReturnRows(rows)

	class, err := repo.Get(context.Background(), "invoice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if class.Name != "invoice" {
		t.Fatalf("expected class invoice, got %q", class.Name)
	}
	if len(class.Fields) != 1 || class.Fields[0].Name != "total_amount" {
		t.Fatalf("unexpected fields: %+v", class.Fields)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertClassSendsOrderedFieldsJSON(t *testing.T) {
	repo, mock, done := newClassRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO class_prompts").
		WithArgs(
			"invoice",
			[]byte(`[{"name":"total_amount","question":"What is the total amount?"},{"name":"due_date","question":"When is payment due?"}]`),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), domain.DocumentClass{
		Name: "invoice",
		Fields: []domain.FieldPrompt{
			{Name: "total_amount", Question: "What is the total amount?"},
			{Name: "due_date", Question: "When is payment due?"},
		},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteClassReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newClassRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM class_prompts").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
