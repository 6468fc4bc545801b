package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
)

var plainTextExts = map[string]bool{
	".txt": true, ".py": true, ".js": true, ".ts": true, ".go": true,
	".html": true, ".css": true, ".json": true, ".yaml": true, ".yml": true,
	".xml": true, ".csv": true, ".sh": true, ".rst": true,
}

var errInvalidUTF8 = errors.New("file is not valid utf-8 text")

// SupportedExt reports whether a file with this name can be extracted.
func SupportedExt(name string) bool {
	switch ext := FileExt(name); ext {
	case ".pdf", ".doc", ".docx", ".md", ".markdown":
		return true
	default:
		return plainTextExts[ext]
	}
}

// FileExt is the lower cased extension of name, including the dot.
func FileExt(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// ExtractFile dispatches on the lowercase extension of name.
func ExtractFile(name string, data []byte) (string, error) {
	ext := FileExt(name)
	switch {
	case ext == ".pdf":
		return extractPDF(data)
	case ext == ".doc" || ext == ".docx":
		return extractDocx(data)
	case ext == ".md" || ext == ".markdown":
		return extractMarkdown(data)
	case plainTextExts[ext]:
		return extractPlain(data)
	}
	return "", &UnsupportedFormatError{Ext: ext}
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return string(data), nil
}

func extractMarkdown(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	var buf bytes.Buffer
	if err := goldmark.Convert(data, &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return flattenHTML(&buf)
}
