package api

import (
	"net/http"

	"github.com/p-arndt/werkbank/protocol"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}

	var req protocol.IngestRequest
	if err := decodeJSONBodyLimit(w, r, &req, maxFileBodyBytes); err != nil {
		writeValidationError(w, "invalid json", nil)
		return
	}

	res, err := s.ingester.IngestMessageAttachments(r.Context(), chatID, req.Message)
	if err != nil {
		s.logger.Error("ingest failed", "request_id", requestID(r.Context()), "chat_id", chatID, "error", err)
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.IngestResponse{Ingested: res.Ingested, Skipped: res.Skipped})
}
