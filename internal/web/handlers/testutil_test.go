package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database/memory"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// testEnv wires handlers over the in-memory backend.
type testEnv struct {
	backend    *memory.Backend
	store      *gallery.Store
	ledger     *attendance.Ledger
	identities *IdentitiesHandler
	attendance *AttendanceHandler
}

type fakeExtractor struct {
	faces []embedding.Vector
	err   error
}

func (f fakeExtractor) FaceEmbeddings(context.Context, []byte) ([]embedding.Vector, error) {
	return f.faces, f.err
}

func newTestEnv(t *testing.T, opts ...recognition.Option) *testEnv {
	t.Helper()
	b := memory.NewBackend()
	store, err := gallery.NewStore(context.Background(), b.Identities(), 0)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	ledger := attendance.NewLedger(b.Attendance(), store)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := recognition.NewService(store, ledger, opts...)

	return &testEnv{
		backend:    b,
		store:      store,
		ledger:     ledger,
		identities: NewIdentitiesHandler(store, logger),
		attendance: NewAttendanceHandler(svc, ledger, logger),
	}
}

func (e *testEnv) enroll(t *testing.T, name string, v embedding.Vector) int64 {
	t.Helper()
	id, err := e.store.Enroll(context.Background(), name, v)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	return id.ID
}

// jsonRequest builds a request with a JSON-encoded body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
