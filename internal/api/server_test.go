package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ptnguyen/devsentry/internal/config"
	"github.com/ptnguyen/devsentry/internal/model"
	"github.com/ptnguyen/devsentry/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "devsentry.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := New(config.DefaultConfig().Server, store, nil, nil, nil, "test")
	return srv, store
}

func seedSession(t *testing.T, store *storage.Store) int64 {
	t.Helper()
	id, err := store.BeginSession(time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	events := []model.RawEvent{
		{Timestamp: time.Date(2025, 11, 3, 9, 1, 0, 0, time.UTC), Source: "disk", EventID: 51, Message: "disconnect"},
	}
	if _, err := store.StoreEvents(id, events, "", false); err != nil {
		t.Fatalf("StoreEvents: %v", err)
	}
	return id
}

// TestHandleHealth verifies the health endpoint shape.
func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "healthy" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

// TestHandleListSessions verifies listing, including the empty case.
func TestHandleListSessions(t *testing.T) {
	srv, store := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Count != 0 {
		t.Errorf("count = %d, want 0 before any sessions", body.Count)
	}

	seedSession(t, store)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

// TestHandleSessionEvents verifies event lookup and the 404 path.
func TestHandleSessionEvents(t *testing.T) {
	srv, store := newTestServer(t)
	id := seedSession(t, store)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/sessions/"+itoa(id)+"/events", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Count  int                   `json:"count"`
		Events []storage.StoredEvent `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 1 || body.Events[0].Source != "disk" {
		t.Errorf("body = %+v", body)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/9999/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status for missing session = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc/events", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for bad id = %d, want 400", rec.Code)
	}
}

// TestHandleScan_Unconfigured verifies the scan trigger reports 503 when the
// server has no runner wired.
func TestHandleScan_Unconfigured(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scan", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
