package api

import (
	"encoding/base64"
	"net/http"
	"unicode/utf8"

	"github.com/p-arndt/werkbank/internal/workspace"
	"github.com/p-arndt/werkbank/protocol"
)

// handleListPaths never fails: a store error degrades to an empty list.
func (s *Server) handleListPaths(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}

	paths, err := s.workspace.ListPaths(r.Context(), chatID)
	if err != nil {
		s.logger.Warn("listing workspace paths failed", "chat_id", chatID, "error", err)
		paths = nil
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, protocol.PathsResponse{Paths: paths})
}

func (s *Server) handleAddPath(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}

	var req protocol.PathRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json", nil)
		return
	}
	if err := validatePath(req.Path); err != nil {
		writeValidationError(w, err.Error(), map[string]any{"path": req.Path})
		return
	}

	if err := s.workspace.AddPath(r.Context(), chatID, req.Path); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.OKResponse{OK: true})
}

func (s *Server) handleRemovePath(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	p, ok := queryPath(w, r)
	if !ok {
		return
	}

	if err := s.workspace.RemovePath(r.Context(), chatID, p); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.OKResponse{OK: true})
}

func (s *Server) handleSaveFile(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}

	var req protocol.FileRequest
	if err := decodeJSONBodyLimit(w, r, &req, maxFileBodyBytes); err != nil {
		writeValidationError(w, "invalid json", nil)
		return
	}
	if err := validateFileRequest(req); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	var err error
	if req.Content != nil {
		err = s.workspace.SaveFile(r.Context(), chatID, req.Path, *req.Content)
	} else {
		data, decErr := base64.StdEncoding.DecodeString(req.ContentBase64)
		if decErr != nil {
			writeValidationError(w, "content_base64 is not valid base64", nil)
			return
		}
		err = s.workspace.SaveBinaryFile(r.Context(), chatID, req.Path, data)
	}
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.OKResponse{OK: true})
}

// handleGetFile serves saved content, falling back to a sync from the live
// sandbox for files the chat never saved.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	p, ok := queryPath(w, r)
	if !ok {
		return
	}

	data, found, err := s.workspace.ReadFile(r.Context(), chatID, p)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	synced := false
	if !found {
		data, found, err = s.workspace.SyncFromSandbox(r.Context(), chatID, p)
		if err != nil {
			s.logger.Warn("sync from sandbox failed", "request_id", requestID(r.Context()), "chat_id", chatID, "path", p, "error", err)
		}
		if !found {
			writeNotFoundError(w, "file not found: "+p)
			return
		}
		synced = true
	}

	resp := protocol.FileResponse{Path: p, Synced: synced}
	if utf8.Valid(data) && workspace.IsTextFile(p) {
		resp.Content = string(data)
	} else {
		resp.Binary = true
		resp.ContentBase64 = base64.StdEncoding.EncodeToString(data)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteFile removes saved content and stops tracking the path.
// Deleting an absent file succeeds.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	p, ok := queryPath(w, r)
	if !ok {
		return
	}

	if err := s.workspace.DeleteFile(r.Context(), chatID, p); err != nil {
		writeAPIError(w, err)
		return
	}
	if err := s.workspace.RemovePath(r.Context(), chatID, p); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.OKResponse{OK: true})
}

// handleContext always answers 200; an unbuildable digest is "".
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, protocol.ContextResponse{Text: s.workspace.BuildContext(r.Context(), chatID)})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}

	var req protocol.RollbackRequest
	if err := decodeJSONBodyLimit(w, r, &req, maxFileBodyBytes); err != nil {
		writeValidationError(w, "invalid json", nil)
		return
	}
	if err := validateRollbackRequest(req); err != nil {
		writeValidationError(w, err.Error(), map[string]any{"up_to_sequence": req.UpToSequence})
		return
	}

	files, err := s.rollback.RollbackToSequence(r.Context(), chatID, req.UpToSequence, req.Messages)
	if err != nil {
		s.logger.Error("rollback failed", "request_id", requestID(r.Context()), "chat_id", chatID, "error", err)
		writeAPIError(w, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, protocol.RollbackResponse{Files: files})
}
