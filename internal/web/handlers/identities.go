package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// IdentitiesHandler serves enrollment and gallery listing.
type IdentitiesHandler struct {
	store  *gallery.Store
	logger *slog.Logger
}

// NewIdentitiesHandler creates the handler.
func NewIdentitiesHandler(store *gallery.Store, logger *slog.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{store: store, logger: logger}
}

// IdentityResponse is the JSON form of an identity.
type IdentityResponse struct {
	ID          int64            `json:"id"`
	DisplayName string           `json:"display_name"`
	Dim         int              `json:"dim"`
	ImageFile   string           `json:"image_file,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Embedding   embedding.Vector `json:"embedding,omitempty"`
}

func toIdentityResponse(id database.Identity, withEmbedding bool) IdentityResponse {
	resp := IdentityResponse{
		ID:          id.ID,
		DisplayName: id.DisplayName,
		Dim:         id.Dim(),
		ImageFile:   id.ImageFile,
		CreatedAt:   id.CreatedAt,
	}
	if withEmbedding {
		resp.Embedding = id.Embedding
	}
	return resp
}

// EnrollRequest is the body of POST /identities.
type EnrollRequest struct {
	DisplayName string           `json:"display_name"`
	Embedding   embedding.Vector `json:"embedding"`
	ImageFile   string           `json:"image_file,omitempty"`
}

// Create enrolls a new identity.
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	identity, err := h.store.EnrollWithImage(r.Context(), req.DisplayName, req.Embedding, req.ImageFile)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.Error("enroll failed", "name", sanitizeForLog(req.DisplayName), "error", err)
		}
		respondCoreError(w, err, "failed to enroll identity")
		return
	}

	h.logger.Info("identity enrolled", "id", identity.ID, "name", sanitizeForLog(identity.DisplayName), "dim", identity.Dim())
	respondJSON(w, http.StatusCreated, toIdentityResponse(identity, false))
}

// List returns all identities; ?embeddings=1 includes the vectors, ?name= filters by normalized name.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	withEmbedding := r.URL.Query().Get("embeddings") == "1"

	var (
		identities []database.Identity
		err        error
	)
	if name := r.URL.Query().Get("name"); name != "" {
		identities, err = h.store.FindByName(r.Context(), name)
	} else {
		identities, err = h.store.All(r.Context())
	}
	if err != nil {
		h.logger.Error("list identities failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list identities")
		return
	}

	out := make([]IdentityResponse, 0, len(identities))
	for _, id := range identities {
		out = append(out, toIdentityResponse(id, withEmbedding))
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one identity including its embedding.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid identity id")
		return
	}

	identity, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondCoreError(w, err, "failed to get identity")
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(*identity, true))
}
