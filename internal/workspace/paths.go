package workspace

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// textExtensions lists extensions (and bare filenames such as Makefile) whose
// content is kept as text. Everything else is stored as a blob.
var textExtensions = map[string]bool{}

func init() {
	for _, e := range strings.Fields(`
		js ts jsx tsx mjs cjs
		py pyw pyi
		java c cpp cc h hpp cs go rb php
		html htm css scss less sass
		sql scala swift kt kts rs dart lua r
		json jsonl xml yaml yml toml ini cfg conf
		md mdx txt text csv tsv log
		sh bash zsh bat cmd ps1
		env gitignore dockerignore editorconfig
		svg graphql gql proto tf hcl
		makefile cmake dockerfile`) {
		textExtensions[e] = true
	}
}

// Basename strips any directory component, accepting both separators.
func Basename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Ext returns the lower-cased extension of p without the dot, or "".
func Ext(p string) string {
	base := Basename(p)
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// IsTextFile reports whether p should be stored as text. Files without an
// extension or with an unknown one count as binary.
func IsTextFile(p string) bool {
	base := strings.ToLower(Basename(p))
	if textExtensions[base] {
		return true
	}
	ext := Ext(base)
	return ext != "" && textExtensions[ext]
}

// PathForFilename maps an uploaded filename to its path in the sandbox:
// the basename only, joined under base. base names a path inside the
// sandbox, so nothing on the local filesystem is consulted.
func PathForFilename(base, filename string) (string, error) {
	name := Basename(filename)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, filename)
	}
	return path.Join(base, name), nil
}

// ValidatePath checks a caller-supplied workspace path.
func ValidatePath(p string) error {
	if p == "" || strings.ContainsRune(p, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	if !path.IsAbs(p) {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, p)
	}
	return nil
}

// InBase reports whether p lies under base.
func InBase(base, p string) bool {
	clean := path.Clean(p)
	return clean == base || strings.HasPrefix(clean, strings.TrimSuffix(base, "/")+"/")
}

var codeAttachmentExt = regexp.MustCompile(`(?i)\.(js|ts|jsx|tsx|py|java|c|cpp|cs|go|rb|php|html|css|sql|scala|swift|kt|rs|dart|json|xml|yaml|yml|md|txt|csv)$`)

// IsTextAttachment classifies an uploaded attachment as text or code that
// can be placed in the sandbox. Images and PDFs never qualify.
func IsTextAttachment(contentType, fileType, name string) bool {
	ct := strings.ToLower(contentType)
	ft := strings.ToLower(fileType)
	if strings.HasPrefix(ct, "image/") || ct == "application/pdf" {
		return false
	}
	if ft == "image" || ft == "pdf" {
		return false
	}
	return codeAttachmentExt.MatchString(name) ||
		ft == "code" ||
		strings.Contains(ct, "text/") ||
		strings.Contains(ct, "javascript") ||
		strings.Contains(ct, "json") ||
		ct == "application/csv"
}
