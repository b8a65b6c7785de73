package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/auth"
	"github.com/indaba-ai/indaba-engine/pkg/models"
	"github.com/indaba-ai/indaba-engine/pkg/services"
)

// ExhaustedResponse is the HTTP 400 envelope for a query that burned its
// whole retry budget.
type ExhaustedResponse struct {
	Error      string   `json:"error"`
	RetryCount int      `json:"retry_count"`
	Errors     []string `json:"errors"`
	SQLQuery   string   `json:"sql_query"`
}

// QueryHandler turns natural-language questions into executed SQL.
type QueryHandler struct {
	orchestrator *services.QueryOrchestrator
	cookies      *auth.BrowserSessions
	logger       *zap.Logger
}

// NewQueryHandler creates a new QueryHandler. cookies may be nil; when set,
// requests without a session_id fall back to the signed browser cookie.
func NewQueryHandler(orchestrator *services.QueryOrchestrator, cookies *auth.BrowserSessions, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{orchestrator: orchestrator, cookies: cookies, logger: logger}
}

// RegisterRoutes registers the query route.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.Query)
}

// Query handles POST /api/query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Question == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "question is required")
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		if h.cookies != nil {
			if cookieID, ok := h.cookies.SessionID(r); ok {
				sessionID = cookieID
				err = nil
			}
		}
	}
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing or invalid session_id")
		return
	}

	run := services.RunRequest{
		Question:   req.Question,
		SchemaName: req.SchemaName,
		History:    req.ConversationHistory,
	}
	if req.MaxRetries != nil {
		run.MaxRetries = *req.MaxRetries
	}

	resp, err := h.orchestrator.Execute(r.Context(), sessionID, run)
	if err != nil {
		h.writeQueryError(w, resp, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, resp)
}

func (h *QueryHandler) writeQueryError(w http.ResponseWriter, resp *models.QueryResponse, err error) {
	switch {
	case errors.Is(err, apperrors.ErrRetriesExhausted):
		envelope := ExhaustedResponse{Error: err.Error()}
		if resp != nil {
			envelope.RetryCount = resp.RetryCount
			envelope.Errors = resp.ErrorsEncountered
			envelope.SQLQuery = resp.SQLQuery
		}
		_ = WriteJSON(w, http.StatusBadRequest, envelope)

	case errors.Is(err, apperrors.ErrQueryTimeout):
		_ = ErrorResponse(w, http.StatusGatewayTimeout, "query timed out")

	case errors.Is(err, apperrors.ErrSessionExpired):
		_ = ErrorResponse(w, http.StatusNotFound, "session expired or not found")

	case errors.Is(err, apperrors.ErrAdapterUnavailable):
		_ = ErrorResponse(w, http.StatusServiceUnavailable, err.Error())

	case errors.Is(err, apperrors.ErrValidationFailed),
		errors.Is(err, apperrors.ErrDangerousOperation),
		errors.Is(err, apperrors.ErrUnknownDialect):
		_ = ErrorResponse(w, http.StatusBadRequest, err.Error())

	default:
		h.logger.Error("query failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, err.Error())
	}
}
