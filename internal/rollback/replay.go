package rollback

import (
	"slices"
	"strings"

	"github.com/p-arndt/werkbank/protocol"
)

// fileMap is a path to content map that remembers insertion order.
type fileMap struct {
	order   []string
	content map[string]string
}

func newFileMap() *fileMap {
	return &fileMap{content: make(map[string]string)}
}

func (m *fileMap) set(path, content string) {
	if _, ok := m.content[path]; !ok {
		m.order = append(m.order, path)
	}
	m.content[path] = content
}

func (m *fileMap) get(path string) string {
	return m.content[path]
}

func (m *fileMap) delete(path string) {
	if _, ok := m.content[path]; !ok {
		return
	}
	delete(m.content, path)
	m.order = slices.DeleteFunc(m.order, func(p string) bool { return p == path })
}

// Replay applies the file-edit tool calls of assistant messages with a
// sequence number at or below upTo, in ascending sequence order, and returns
// the resulting files in first-write order.
func Replay(messages []protocol.Message, upTo int) (paths []string, contents map[string]string) {
	msgs := make([]protocol.Message, 0, len(messages))
	for _, m := range messages {
		if m.SequenceNumber <= upTo && m.Role == protocol.RoleAssistant {
			msgs = append(msgs, m)
		}
	}
	slices.SortStableFunc(msgs, func(a, b protocol.Message) int {
		return a.SequenceNumber - b.SequenceNumber
	})

	files := newFileMap()
	for _, m := range msgs {
		for _, p := range m.Parts {
			if !protocol.IsFileEdit(p.Type) {
				continue
			}
			in, ok := protocol.DecodeToolInput(p)
			if !ok || in.Path == nil {
				continue
			}
			path := *in.Path

			switch p.Type {
			case protocol.PartWriteFile:
				content := ""
				if in.Content != nil {
					content = *in.Content
				}
				files.set(path, content)
			case protocol.PartApplyEdits:
				files.set(path, ApplyEdits(files.get(path), in.Edits))
			case protocol.PartDeleteFile:
				files.delete(path)
			}
		}
	}
	return files.order, files.content
}

// ApplyEdits replaces 1-based inclusive line ranges of content. Edits are
// applied from the highest end line down so earlier ranges keep their
// numbering. An empty NewContent deletes the range.
func ApplyEdits(content string, edits []protocol.Edit) string {
	lines := strings.Split(content, "\n")
	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b protocol.Edit) int {
		return b.EndLine - a.EndLine
	})

	for _, e := range sorted {
		start := max(0, e.StartLine-1)
		if start > len(lines) {
			start = len(lines)
		}
		count := min(len(lines)-start, e.EndLine-e.StartLine+1)
		if count < 0 {
			count = 0
		}
		var repl []string
		if e.NewContent != "" {
			repl = strings.Split(e.NewContent, "\n")
		}
		lines = slices.Replace(lines, start, start+count, repl...)
	}
	return strings.Join(lines, "\n")
}
