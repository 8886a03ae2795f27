package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

const testKey = "test-admin-key"

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestService(), testKey)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return h, e
}

func TestHandler_RejectsMissingKey(t *testing.T) {
	_, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/tables", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_RejectsWrongKey(t *testing.T) {
	_, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/tables", nil)
	req.Header.Set(HeaderAPIKey, "wrong")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_DisabledWithoutKey(t *testing.T) {
	h := NewHandler(newTestService(), "")
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/tables", nil)
	req.Header.Set(HeaderAPIKey, "anything")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when no key configured, got %d", rec.Code)
	}
}

func TestHandler_ListTables(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/tables", nil)
	req.Header.Set(HeaderAPIKey, testKey)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Tables []string `json:"tables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Tables) != 2 {
		t.Errorf("expected 2 tables, got %v", body.Tables)
	}

	// The access must be audited.
	events, _ := h.svc.Audit(context.Background(), 10)
	if len(events) != 1 || events[0].Action != ActionListTables {
		t.Errorf("expected one list_tables audit event, got %+v", events)
	}
}

func TestHandler_PreviewTable(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/tables/runs?limit=2&reason=debugging", nil)
	req.Header.Set(HeaderAPIKey, testKey)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Table string   `json:"table"`
		Rows  []string `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Table != "runs" || len(body.Rows) != 2 {
		t.Errorf("unexpected preview: %+v", body)
	}

	events, _ := h.svc.Audit(context.Background(), 10)
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	if events[0].Reason != "debugging" || events[0].Meta["table"] != "runs" {
		t.Errorf("audit event missing reason or table: %+v", events[0])
	}
}

func TestHandler_PreviewUnknownTable(t *testing.T) {
	_, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/tables/secrets", nil)
	req.Header.Set(HeaderAPIKey, testKey)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_ListAudit(t *testing.T) {
	h, e := newTestHandler()
	h.svc.Record(context.Background(), &AuditEvent{Endpoint: "/x", Action: ActionPreview})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit", nil)
	req.Header.Set(HeaderAPIKey, testKey)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data []AuditEvent `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Data) != 1 {
		t.Errorf("expected 1 audit event, got %d", len(body.Data))
	}
}
