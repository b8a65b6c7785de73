package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/auth"
	"github.com/indaba-ai/indaba-engine/pkg/config"
	"github.com/indaba-ai/indaba-engine/pkg/logging"
	"github.com/indaba-ai/indaba-engine/pkg/models"
	"github.com/indaba-ai/indaba-engine/pkg/services"
)

// ConnectRequest is the inbound shape of POST /api/connect.
type ConnectRequest struct {
	DatabaseType string `json:"database_type"`
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	Database     string `json:"database,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	SID          string `json:"sid,omitempty"`
	ServiceName  string `json:"service_name,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// ConnectResponse carries the minted session and server identity.
type ConnectResponse struct {
	SessionID  string             `json:"session_id"`
	ServerInfo *models.ServerInfo `json:"server_info"`
}

// ConnectHandler mints and tears down database sessions. When a browser
// cookie store is configured, the minted session ID also rides a signed
// cookie so web clients can omit session_id on later calls.
type ConnectHandler struct {
	sessions *services.SessionRegistry
	pools    *datasource.PoolManager
	schemas  *services.SchemaService
	cookies  *auth.BrowserSessions
	logger   *zap.Logger
}

// NewConnectHandler creates a new ConnectHandler. cookies may be nil.
func NewConnectHandler(sessions *services.SessionRegistry, pools *datasource.PoolManager, schemas *services.SchemaService, cookies *auth.BrowserSessions, logger *zap.Logger) *ConnectHandler {
	return &ConnectHandler{
		sessions: sessions,
		pools:    pools,
		schemas:  schemas,
		cookies:  cookies,
		logger:   logger,
	}
}

// RegisterRoutes registers the connection lifecycle routes.
func (h *ConnectHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/connect", h.Connect)
	mux.HandleFunc("POST /api/disconnect", h.Disconnect)
	mux.HandleFunc("GET /api/schemas", h.Schemas)
}

// Connect handles POST /api/connect: it tests the connection and mints (or
// reuses) a session bound to it.
func (h *ConnectHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	params := models.ConnectionParams{
		DatabaseType: req.DatabaseType,
		Host:         config.ResolveHostForDocker(req.Host),
		Port:         req.Port,
		Database:     req.Database,
		Username:     req.Username,
		Password:     req.Password,
		SID:          req.SID,
		ServiceName:  req.ServiceName,
		FilePath:     req.FilePath,
	}

	adapter, err := h.pools.Acquire(r.Context(), params)
	if err != nil {
		h.logger.Warn("connection failed",
			zap.String("dialect", params.DatabaseType),
			zap.String("error", logging.SanitizeError(err)))
		_ = ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := adapter.TestConnection(r.Context())
	h.pools.Release(params, adapter)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var requested *uuid.UUID
	if req.SessionID != "" {
		if id, parseErr := uuid.Parse(req.SessionID); parseErr == nil {
			requested = &id
		}
	}
	session := h.sessions.GetOrCreate(requested, params)

	if h.cookies != nil {
		if err := h.cookies.SetSessionID(w, r, session.ID); err != nil {
			h.logger.Warn("failed to set session cookie", zap.Error(err))
		}
	}

	h.logger.Info("session connected",
		zap.String("session_id", session.ID.String()),
		zap.String("dialect", params.DatabaseType),
		zap.String("database", info.Database))

	_ = WriteJSON(w, http.StatusOK, ConnectResponse{
		SessionID:  session.ID.String(),
		ServerInfo: info,
	})
}

// Disconnect handles POST /api/disconnect: it drops the session and closes
// its pool.
func (h *ConnectHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid session_id")
		return
	}

	session, err := h.sessions.Get(id)
	if err != nil {
		_ = ErrorResponse(w, http.StatusNotFound, "session not found")
		return
	}

	h.sessions.Remove(id)
	h.pools.Close(session.Params)

	if h.cookies != nil {
		if err := h.cookies.Clear(w, r); err != nil {
			h.logger.Warn("failed to clear session cookie", zap.Error(err))
		}
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// Schemas handles GET /api/schemas for the session named in the session_id
// query parameter.
func (h *ConnectHandler) Schemas(w http.ResponseWriter, r *http.Request) {
	session, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	summaries, err := h.schemas.ListSchemas(r.Context(), session)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"schemas": summaries})
}

func (h *ConnectHandler) resolveSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	raw := r.URL.Query().Get("session_id")
	if raw == "" {
		raw = r.Header.Get("X-Session-ID")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		if h.cookies != nil {
			if cookieID, ok := h.cookies.SessionID(r); ok {
				id = cookieID
				err = nil
			}
		}
	}
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing or invalid session_id")
		return nil, false
	}

	session, err := h.sessions.Get(id)
	if err != nil {
		_ = ErrorResponse(w, http.StatusNotFound, "session expired or not found")
		return nil, false
	}
	return session, true
}
