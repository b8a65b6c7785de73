package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/services"
)

// OntologyGenerateRequest triggers extraction for one session's schema.
type OntologyGenerateRequest struct {
	SessionID  string `json:"session_id"`
	SchemaName string `json:"schema_name,omitempty"`
}

// OntologyGenerateResponse summarizes the generated model.
type OntologyGenerateResponse struct {
	ConnectionID  string   `json:"connection_id"`
	Concepts      int      `json:"concepts"`
	Relationships int      `json:"relationships"`
	Files         []string `json:"files,omitempty"`
}

// OntologyHandler exposes dynamic ontology generation.
type OntologyHandler struct {
	sessions *services.SessionRegistry
	schemas  *services.SchemaService
	ontology *services.OntologyService
	logger   *zap.Logger
}

// NewOntologyHandler creates a new OntologyHandler.
func NewOntologyHandler(sessions *services.SessionRegistry, schemas *services.SchemaService, ontology *services.OntologyService, logger *zap.Logger) *OntologyHandler {
	return &OntologyHandler{
		sessions: sessions,
		schemas:  schemas,
		ontology: ontology,
		logger:   logger,
	}
}

// RegisterRoutes registers the ontology routes.
func (h *OntologyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ontology/generate", h.Generate)
}

// Generate handles POST /api/ontology/generate: it snapshots the session's
// schema, runs batched extraction, and reports the artifact files.
func (h *OntologyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req OntologyGenerateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing or invalid session_id")
		return
	}
	session, err := h.sessions.Get(id)
	if err != nil {
		_ = ErrorResponse(w, http.StatusNotFound, "session expired or not found")
		return
	}

	snap, err := h.schemas.Snapshot(r.Context(), session, req.SchemaName)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	connectionID := session.Params.PoolKey()
	ontology, err := h.ontology.Generate(r.Context(), connectionID, snap)
	if err != nil {
		h.logger.Error("ontology generation failed",
			zap.String("session_id", session.ID.String()),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	_ = WriteJSON(w, http.StatusOK, OntologyGenerateResponse{
		ConnectionID:  connectionID,
		Concepts:      len(ontology.Concepts),
		Relationships: len(ontology.Relationships),
		Files:         h.ontology.Artifacts(connectionID),
	})
}
