package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkotenko/document-intake/internal/config"
	"github.com/dkotenko/document-intake/internal/core/domain"
)

func TestHealthzEndpoint(t *testing.T) {
	handler := newFixture().handler(config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestListClassesEmptyReturnsArray(t *testing.T) {
	handler := newFixture().handler(config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/classes", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := strings.TrimSpace(res.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %q", body)
	}
}

func TestUpsertClassReturnsSavedDefinition(t *testing.T) {
	fixture := newFixture()
	handler := fixture.handler(config.Config{})

	payload := `{"name":"  Invoice  ","fields":[{"name":"invoice_number","question":"What is the invoice number?"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/classes", strings.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var saved domain.DocumentClass
	if err := json.NewDecoder(res.Body).Decode(&saved); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if saved.Name != "invoice" {
		t.Fatalf("expected normalized name invoice, got %q", saved.Name)
	}
	if len(fixture.classes.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(fixture.classes.upserts))
	}
}

func TestGetClassByPathName(t *testing.T) {
	fixture := newFixture()
	fixture.classes.classes = []domain.DocumentClass{{
		Name:      "invoice",
		Fields:    []domain.FieldPrompt{{Name: "total", Question: "What is the total?"}},
		UpdatedAt: time.Now().UTC(),
	}}
	handler := fixture.handler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/classes/invoice", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var class domain.DocumentClass
	if err := json.NewDecoder(res.Body).Decode(&class); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if class.Name != "invoice" || len(class.Fields) != 1 {
		t.Fatalf("unexpected class payload: %+v", class)
	}
}

func TestGetClassNotFoundMaps404(t *testing.T) {
	handler := newFixture().handler(config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/classes/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestPutClassUsesPathNameOverBody(t *testing.T) {
	fixture := newFixture()
	handler := fixture.handler(config.Config{})

	payload := `{"name":"other","fields":[{"name":"total","question":"What is the total?"}]}`
	req := httptest.NewRequest(http.MethodPut, "/v1/classes/invoice", strings.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(fixture.classes.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(fixture.classes.upserts))
	}
	if got := fixture.classes.upserts[0].Name; got != "invoice" {
		t.Fatalf("expected path name to win, got %q", got)
	}
}

func TestDeleteClassReturns204(t *testing.T) {
	fixture := newFixture()
	handler := fixture.handler(config.Config{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/classes/invoice", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(fixture.classes.deletes) != 1 || fixture.classes.deletes[0] != "invoice" {
		t.Fatalf("unexpected deletes: %v", fixture.classes.deletes)
	}
}

func TestDeleteClassInUseMaps409(t *testing.T) {
	fixture := newFixture()
	fixture.classes.err = domain.WrapError(domain.ErrConflict, "delete class", errors.New("class is referenced by a running batch"))
	handler := fixture.handler(config.Config{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/classes/invoice", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestClassCollectionRejectsUnknownMethod(t *testing.T) {
	handler := newFixture().handler(config.Config{})
	req := httptest.NewRequest(http.MethodPatch, "/v1/classes", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
