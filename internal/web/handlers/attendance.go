package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// maxImageBytes caps capture uploads.
const maxImageBytes = constants.MaxImageUploadBytes

// AttendanceHandler serves recognition passes and the attendance log.
type AttendanceHandler struct {
	service *recognition.Service
	ledger  *attendance.Ledger
	logger  *slog.Logger
}

// NewAttendanceHandler creates the handler.
func NewAttendanceHandler(service *recognition.Service, ledger *attendance.Ledger, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{service: service, ledger: ledger, logger: logger}
}

// RecognizeRequest carries the embeddings of every face in one capture.
type RecognizeRequest struct {
	Embeddings []embedding.Vector `json:"embeddings"`
	Timestamp  string             `json:"timestamp,omitempty"`
}

// Recognize runs a pass over precomputed embeddings.
func (h *AttendanceHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	at, err := parseTime(req.Timestamp)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	pass, err := h.service.Recognize(r.Context(), req.Embeddings, at)
	h.respondPass(w, pass, err)
}

// RecognizeImage runs a pass over the faces the embedding server finds in the uploaded `file`.
func (h *AttendanceHandler) RecognizeImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		respondError(w, http.StatusBadRequest, "empty file")
		return
	}
	at, err := parseTime(r.FormValue("timestamp"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	pass, err := h.service.RecognizeImage(r.Context(), data, at)
	h.respondPass(w, pass, err)
}

func (h *AttendanceHandler) respondPass(w http.ResponseWriter, pass recognition.Pass, err error) {
	if err != nil {
		switch statusForError(err) {
		case http.StatusBadGateway:
			h.logger.Error("face extraction failed", "error", err)
			respondError(w, http.StatusBadGateway, "face extraction failed")
			return
		case http.StatusInternalServerError:
			h.logger.Error("recognition failed", "error", err)
		}
		respondCoreError(w, err, "recognition failed")
		return
	}
	respondJSON(w, http.StatusOK, pass)
}

// RecordRequest is the body of a manual attendance record.
type RecordRequest struct {
	IdentityID int64  `json:"identity_id"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// EventResponse is the JSON form of a stored event.
type EventResponse struct {
	ID         int64     `json:"id"`
	IdentityID int64     `json:"identity_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Record appends a raw event without deduplication.
func (h *AttendanceHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	at, err := parseTime(req.Timestamp)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if at.IsZero() {
		at = time.Now()
	}

	ev, err := h.ledger.Record(r.Context(), req.IdentityID, at)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.Error("record attendance failed", "identity", req.IdentityID, "error", err)
		}
		respondCoreError(w, err, "failed to record attendance")
		return
	}
	respondJSON(w, http.StatusCreated, EventResponse{ID: ev.ID, IdentityID: ev.IdentityID, Timestamp: ev.Timestamp})
}

// List returns the attendance report for ?from= and ?to= (half-open, both optional).
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		respondError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	rows, err := h.ledger.Report(r.Context(), from, to)
	if err != nil {
		h.logger.Error("attendance report failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load attendance")
		return
	}
	if rows == nil {
		rows = []attendance.ReportRow{}
	}
	respondJSON(w, http.StatusOK, rows)
}
