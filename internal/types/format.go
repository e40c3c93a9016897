// Package types provides type definitions for structured data used throughout the echo pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"strings"
)

// Format identifies one surface rendering of a Document
type Format string

const (
	// FormatMarkdown is CommonMark text
	FormatMarkdown Format = "markdown"
	// FormatHTML is a standalone HTML5 document
	FormatHTML Format = "html"
	// FormatJSONLD is a schema.org JSON-LD serialization of the document model
	FormatJSONLD Format = "jsonld"
)

// AllFormats lists every supported format in canonical order.
// Canonical order drives encoding order, pair enumeration and file layout.
var AllFormats = []Format{FormatMarkdown, FormatHTML, FormatJSONLD}

// ParseFormat converts a user-supplied string into a Format
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMarkdown, FormatHTML, FormatJSONLD:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "json-ld":
		return FormatJSONLD, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// Valid reports whether f is one of the supported formats
func (f Format) Valid() bool {
	return f.rank() >= 0
}

// Extension returns the file extension (with dot) used when persisting the format
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatHTML:
		return ".html"
	case FormatJSONLD:
		return ".jsonld"
	default:
		return ".txt"
	}
}

func (f Format) rank() int {
	for i, known := range AllFormats {
		if f == known {
			return i
		}
	}
	return -1
}

// Less orders formats canonically; unknown formats sort last by name
func (f Format) Less(other Format) bool {
	ri, rj := f.rank(), other.rank()
	switch {
	case ri >= 0 && rj >= 0:
		return ri < rj
	case ri >= 0:
		return true
	case rj >= 0:
		return false
	default:
		return f < other
	}
}

// SortFormats returns a deduplicated copy of formats in canonical order
func SortFormats(formats []Format) []Format {
	seen := make(map[Format]bool, len(formats))
	out := make([]Format, 0, len(formats))
	for _, f := range formats {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Less(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Length is the requested size class of generated content
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)
