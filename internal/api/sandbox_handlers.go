package api

import (
	"net/http"

	"github.com/p-arndt/werkbank/protocol"
)

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}

	sb, err := s.sessions.Acquire(r.Context(), chatID)
	if err != nil {
		s.logger.Error("acquire failed", "request_id", requestID(r.Context()), "chat_id", chatID, "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, protocol.AcquireResponse{
		ChatID:    chatID,
		SandboxID: sb.ID(),
		Driver:    s.sessions.Driver().Name(),
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	s.sessions.Invalidate(chatID)
	writeJSON(w, http.StatusOK, protocol.OKResponse{OK: true})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	if err := s.sessions.Reset(r.Context(), chatID); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.OKResponse{OK: true})
}
