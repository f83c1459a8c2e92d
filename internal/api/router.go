package api

import (
	"log/slog"
	"net/http"

	"github.com/p-arndt/werkbank/internal/config"
	"github.com/p-arndt/werkbank/protocol"
)

type Server struct {
	cfg       *config.Config
	sessions  SessionService
	workspace WorkspaceService
	ingester  Ingester
	rollback  Rollbacker
	pool      PoolStats
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer wires the HTTP surface. pool may be nil.
func NewServer(cfg *config.Config, sessions SessionService, ws WorkspaceService, ingester Ingester, rb Rollbacker, pool PoolStats, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		sessions:  sessions,
		workspace: ws,
		ingester:  ingester,
		rollback:  rb,
		pool:      pool,
		logger:    logger.With("component", "api"),
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.authMiddleware(s.requestIDMiddleware(s.mux))
}

func (s *Server) routes() {
	// Sandbox lifecycle
	s.mux.HandleFunc("POST /v1/chats/{chatId}/sandbox", s.handleAcquire)
	s.mux.HandleFunc("DELETE /v1/chats/{chatId}/sandbox", s.handleReset)
	s.mux.HandleFunc("DELETE /v1/chats/{chatId}/sandbox/cache", s.handleInvalidate)

	// Workspace
	s.mux.HandleFunc("GET /v1/chats/{chatId}/workspace/paths", s.handleListPaths)
	s.mux.HandleFunc("POST /v1/chats/{chatId}/workspace/paths", s.handleAddPath)
	s.mux.HandleFunc("DELETE /v1/chats/{chatId}/workspace/paths", s.handleRemovePath)
	s.mux.HandleFunc("PUT /v1/chats/{chatId}/workspace/file", s.handleSaveFile)
	s.mux.HandleFunc("GET /v1/chats/{chatId}/workspace/file", s.handleGetFile)
	s.mux.HandleFunc("DELETE /v1/chats/{chatId}/workspace/file", s.handleDeleteFile)
	s.mux.HandleFunc("GET /v1/chats/{chatId}/workspace/context", s.handleContext)
	s.mux.HandleFunc("POST /v1/chats/{chatId}/workspace/rollback", s.handleRollback)

	// Messages
	s.mux.HandleFunc("POST /v1/chats/{chatId}/attachments", s.handleIngest)

	// Health check (no auth)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.Stats()
	resp := protocol.HealthResponse{
		Status:          "ok",
		Driver:          s.sessions.Driver().Name(),
		CachedSandboxes: st.CachedSandboxes,
		WarmHits:        st.WarmHits,
		Reconnects:      st.Reconnects,
		Recreates:       st.Recreates,
	}
	if s.pool != nil {
		resp.PoolSize = s.pool.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// chatID reads and validates the {chatId} path value. On failure the
// response is already written.
func (s *Server) chatID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("chatId")
	if err := validateChatID(id); err != nil {
		writeValidationError(w, err.Error(), map[string]any{"chat_id": id})
		return "", false
	}
	return id, true
}

// queryPath reads and validates the ?path= query parameter.
func queryPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := r.URL.Query().Get("path")
	if err := validatePath(p); err != nil {
		writeValidationError(w, err.Error(), map[string]any{"path": p})
		return "", false
	}
	return p, true
}
