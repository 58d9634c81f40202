package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

type extractFunc func(data []byte) (string, error)

var extractors = map[string]extractFunc{
	".pdf":      extractPDF,
	".docx":     extractDocx,
	".txt":      extractPlain,
	".md":       extractMarkdown,
	".markdown": extractMarkdown,
}

// Supported reports whether filename has an extension Load understands.
func Supported(filename string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Load extracts plain text from r, choosing the parser by the extension of
// filename. The result is trimmed and may be empty.
func Load(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fn, ok := extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filename, err)
	}
	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filename, err)
	}
	return strings.TrimSpace(text), nil
}

func extractPlain(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return strings.ToValidUTF8(string(data), ""), nil
}
