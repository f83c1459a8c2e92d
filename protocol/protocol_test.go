package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeToolInputObject(t *testing.T) {
	p := Part{Type: PartWriteFile, Input: json.RawMessage(`{"path":"/w/a.py","content":"x=1"}`)}

	in, ok := DecodeToolInput(p)
	require.True(t, ok)
	require.NotNil(t, in.Path)
	assert.Equal(t, "/w/a.py", *in.Path)
	require.NotNil(t, in.Content)
	assert.Equal(t, "x=1", *in.Content)
}

func TestDecodeToolInputJSONString(t *testing.T) {
	inner := `{"path":"/w/a.py","edits":[{"startLine":1,"endLine":2,"newContent":"y"}]}`
	quoted, err := json.Marshal(inner)
	require.NoError(t, err)

	in, ok := DecodeToolInput(Part{Type: PartApplyEdits, Args: quoted})
	require.True(t, ok)
	assert.Equal(t, "/w/a.py", *in.Path)
	assert.Equal(t, []Edit{{StartLine: 1, EndLine: 2, NewContent: "y"}}, in.Edits)
}

func TestDecodeToolInputPrefersInput(t *testing.T) {
	p := Part{
		Input: json.RawMessage(`{"path":"/w/input"}`),
		Args:  json.RawMessage(`{"path":"/w/args"}`),
	}
	in, ok := DecodeToolInput(p)
	require.True(t, ok)
	assert.Equal(t, "/w/input", *in.Path)

	p.Input = json.RawMessage(`null`)
	in, ok = DecodeToolInput(p)
	require.True(t, ok)
	assert.Equal(t, "/w/args", *in.Path)
}

func TestDecodeToolInputRejects(t *testing.T) {
	for _, raw := range []string{``, `null`, `[1,2]`, `"not json"`, `42`, `{"path":7}`} {
		_, ok := DecodeToolInput(Part{Input: json.RawMessage(raw)})
		assert.False(t, ok, raw)
	}
}

func TestIsFileEdit(t *testing.T) {
	assert.True(t, IsFileEdit(PartWriteFile))
	assert.True(t, IsFileEdit(PartApplyEdits))
	assert.True(t, IsFileEdit(PartDeleteFile))
	assert.False(t, IsFileEdit("tool-read_file"))
	assert.False(t, IsFileEdit(PartFile))
}

func TestMessageDecodesAttachments(t *testing.T) {
	raw := `{"role":"user","attachments":[{"url":"https://x/a.py","name":"a.py","content_type":"text/x-python"}],
		"parts":[{"type":"file","url":"data:text/plain,hi","filename":"hi.txt","media_type":"text/plain"}]}`

	var m Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "a.py", m.Attachments[0].Name)
	require.Len(t, m.Parts, 1)
	assert.Equal(t, "hi.txt", m.Parts[0].Filename)
	assert.Equal(t, "text/plain", m.Parts[0].MediaType)
}
