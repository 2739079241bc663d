// Package transfer converts the question collection to and from the
// interchange formats used for import and export.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/conorfennell/qbank/internal/domain"
)

// Format is an interchange encoding.
type Format string

const (
	JSON     Format = "json"
	YAML     Format = "yaml"
	Markdown Format = "markdown"
)

// ParseFormat accepts a format name or a common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "md", "markdown":
		return Markdown, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want json, yaml or markdown)", s)
	}
}

// FormatFromFilename picks the format from a file extension.
func FormatFromFilename(name string) (Format, error) {
	return ParseFormat(filepath.Ext(name))
}

// Extension returns the conventional file extension for f, without the dot.
func (f Format) Extension() string {
	if f == Markdown {
		return "md"
	}
	return string(f)
}

// ContentType returns the MIME type used when serving f.
func (f Format) ContentType() string {
	switch f {
	case YAML:
		return "text/yaml; charset=utf-8"
	case Markdown:
		return "text/markdown; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// Decode reads question-like records. JSON and YAML payloads may be either a
// bare list or an object with a "questions" list; any other shape is an
// *domain.ImportFormatError. Records are returned unvalidated.
func Decode(r io.Reader, f Format) ([]map[string]any, error) {
	var doc any
	switch f {
	case JSON:
		dec := json.NewDecoder(r)
		if err := dec.Decode(&doc); err != nil {
			return nil, formatError("malformed JSON: %v", err)
		}
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return nil, formatError("unexpected data after the JSON document")
		}
	case YAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, formatError("empty document")
			}
			return nil, formatError("malformed YAML: %v", err)
		}
	case Markdown:
		return parseMarkdown(r)
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
	return records(doc)
}

func records(doc any) ([]map[string]any, error) {
	var list []any
	switch v := doc.(type) {
	case []any:
		list = v
	case map[string]any:
		inner, ok := v["questions"].([]any)
		if !ok {
			return nil, formatError("no questions array")
		}
		list = inner
	default:
		return nil, formatError("no questions array")
	}

	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, formatError("question %d is not an object", i+1)
		}
		out = append(out, rec)
	}
	return out, nil
}

func formatError(format string, args ...any) error {
	return &domain.ImportFormatError{Reason: fmt.Sprintf(format, args...)}
}

// Encode writes the full collection as a bare list.
func Encode(w io.Writer, f Format, qs []domain.Question) error {
	if qs == nil {
		qs = []domain.Question{}
	}
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(qs)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(qs); err != nil {
			return err
		}
		return enc.Close()
	case Markdown:
		return writeMarkdown(w, qs)
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}
