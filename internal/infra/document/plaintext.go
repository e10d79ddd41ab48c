package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bryanwahyu/tor-evaluator/internal/domain/evaluation"
)

// MaxBytes caps a single uploaded document.
const MaxBytes = 10 << 20

var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// PlainText extracts UTF-8 text documents. PDF and office formats are
// handled by an external converter and rejected here.
type PlainText struct{}

func (PlainText) Extract(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if !Supported(filename, contentType) {
		return "", fmt.Errorf("%w: %s", evaluation.ErrUnsupportedDocument, describe(filename, contentType))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filename, err)
	}
	if len(data) > MaxBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", evaluation.ErrUnsupportedDocument, filename, MaxBytes)
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", evaluation.ErrUnsupportedDocument, filename)
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

// Supported reports whether the file looks like plain text, by media type
// first and extension second.
func Supported(filename, contentType string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "text/plain", "text/markdown":
			return true
		case "application/octet-stream":
			// browsers send this for unknown extensions
		default:
			return false
		}
	}
	return textExtensions[strings.ToLower(filepath.Ext(filename))]
}

func describe(filename, contentType string) string {
	if contentType == "" {
		return filename
	}
	return filename + " (" + contentType + ")"
}
