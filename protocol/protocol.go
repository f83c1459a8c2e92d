// Package protocol defines the JSON types exchanged between werkbank and the
// chat application that drives it.
package protocol

import (
	"encoding/json"
	"strings"
)

// Attachment is a file attached to a user message.
type Attachment struct {
	URL         string `json:"url,omitempty"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	FileType    string `json:"file_type,omitempty"`
	// Content, when set, is used instead of fetching URL.
	Content string `json:"content,omitempty"`
}

// Part is one element of a message's parts list. File parts carry URL,
// Filename and MediaType; tool parts carry their call input in Input or Args.
type Part struct {
	Type      string          `json:"type"`
	URL       string          `json:"url,omitempty"`
	Filename  string          `json:"filename,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
}

const PartFile = "file"

// Tool parts that change workspace files.
const (
	PartWriteFile  = "tool-write_file"
	PartApplyEdits = "tool-apply_edits"
	PartDeleteFile = "tool-delete_file"
)

// IsFileEdit reports whether a part type is a workspace-changing tool call.
func IsFileEdit(partType string) bool {
	switch partType {
	case PartWriteFile, PartApplyEdits, PartDeleteFile:
		return true
	}
	return false
}

// Message is a chat message as far as werkbank cares about it.
type Message struct {
	SequenceNumber int          `json:"sequence_number,omitempty"`
	Role           string       `json:"role,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Parts          []Part       `json:"parts,omitempty"`
}

const RoleAssistant = "assistant"

// Edit replaces lines StartLine..EndLine (1-based, inclusive) with NewContent.
type Edit struct {
	StartLine  int    `json:"startLine"`
	EndLine    int    `json:"endLine"`
	NewContent string `json:"newContent"`
}

// FileEditInput is the input of the file-edit tool calls.
type FileEditInput struct {
	Path    *string `json:"path"`
	Content *string `json:"content"`
	Edits   []Edit  `json:"edits"`
}

// DecodeToolInput reads a tool part's input, preferring Input over Args.
// Either may hold an object or a JSON string containing one. ok is false
// when neither decodes to an object.
func DecodeToolInput(p Part) (in FileEditInput, ok bool) {
	raw := p.Input
	if isNull(raw) {
		raw = p.Args
	}
	if isNull(raw) {
		return in, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		return in, false
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return FileEditInput{}, false
	}
	return in, true
}

func isNull(raw json.RawMessage) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "null"
}

// AcquireResponse is returned by POST /v1/chats/{chatId}/sandbox.
type AcquireResponse struct {
	ChatID    string `json:"chat_id"`
	SandboxID string `json:"sandbox_id"`
	Driver    string `json:"driver"`
}

type PathRequest struct {
	Path string `json:"path"`
}

type PathsResponse struct {
	Paths []string `json:"paths"`
}

// FileRequest saves a workspace file. Exactly one of Content and
// ContentBase64 is used; ContentBase64 marks the file as binary.
type FileRequest struct {
	Path          string  `json:"path"`
	Content       *string `json:"content,omitempty"`
	ContentBase64 string  `json:"content_base64,omitempty"`
}

// FileResponse carries a saved file. Binary files have Binary set and their
// bytes in ContentBase64.
type FileResponse struct {
	Path          string `json:"path"`
	Content       string `json:"content,omitempty"`
	ContentBase64 string `json:"content_base64,omitempty"`
	Binary        bool   `json:"binary,omitempty"`
	Synced        bool   `json:"synced,omitempty"`
}

type ContextResponse struct {
	Text string `json:"text"`
}

type IngestRequest struct {
	Message Message `json:"message"`
}

type IngestResponse struct {
	Ingested []string `json:"ingested"`
	Skipped  []string `json:"skipped"`
}

type RollbackRequest struct {
	UpToSequence int       `json:"up_to_sequence"`
	Messages     []Message `json:"messages"`
}

type RollbackResponse struct {
	Files []string `json:"files"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	Driver          string `json:"driver"`
	CachedSandboxes int    `json:"cached_sandboxes"`
	WarmHits        int64  `json:"warm_hits"`
	Reconnects      int64  `json:"reconnects"`
	Recreates       int64  `json:"recreates"`
	PoolSize        int    `json:"pool_size"`
}
