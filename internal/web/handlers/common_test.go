package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

func TestRespondJSON(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusCreated, map[string]int{"count": 42})

	assertStatusCode(t, recorder, http.StatusCreated)
	assertContentType(t, recorder, "application/json")

	var result map[string]int
	parseJSONResponse(t, recorder, &result)
	if result["count"] != 42 {
		t.Errorf("expected count 42, got %v", result["count"])
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusNoContent, nil)

	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "something went wrong")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "something went wrong")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &embedding.ValidationError{Reason: "empty"}, http.StatusBadRequest},
		{"dimension mismatch", &embedding.DimensionMismatchError{Want: 128, Got: 64}, http.StatusUnprocessableEntity},
		{"wrapped mismatch", fmt.Errorf("match face 0: %w", &embedding.DimensionMismatchError{Want: 2, Got: 3}), http.StatusUnprocessableEntity},
		{"unknown identity", &attendance.UnknownIdentityError{IdentityID: 9}, http.StatusNotFound},
		{"not found", database.ErrNotFound, http.StatusNotFound},
		{"extractor failure", fmt.Errorf("%w: %w", recognition.ErrExtraction, errors.New("connection refused")), http.StatusBadGateway},
		{"other", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusForError(tc.err); got != tc.want {
				t.Errorf("statusForError = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRespondCoreError_HidesInternalDetails(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondCoreError(recorder, errors.New("pq: password authentication failed"), "failed to record")

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to record")
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2024-05-06", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), false},
		{"2024-05-06T10:00:00+02:00", time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC), false},
		{"yesterday", time.Time{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseTime(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tc.wantErr)
			}
			if !got.Equal(tc.want) {
				t.Errorf("parseTime(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("Alice\r\nINFO fake"); got != "AliceINFO fake" {
		t.Errorf("sanitizeForLog = %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	for _, method := range []string{"GET", "HEAD"} {
		t.Run(method, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			HealthCheck(recorder, httptest.NewRequest(method, "/api/v1/health", nil))

			assertStatusCode(t, recorder, http.StatusOK)
			if method == "GET" {
				var result map[string]string
				if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if result["status"] != "ok" {
					t.Errorf("expected status 'ok', got '%s'", result["status"])
				}
			}
		})
	}
}
