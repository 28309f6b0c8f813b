package domain

import (
	"fmt"
	"strings"
)

// Attribute is one "Key: Value" line of an archive header.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StationMetadata is the ordered attribute list declared by one archive.
type StationMetadata []Attribute

// Get returns the value for key and whether it was declared.
func (m StationMetadata) Get(key string) (string, bool) {
	for _, a := range m {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Keys returns the attribute names in declaration order.
func (m StationMetadata) Keys() []string {
	keys := make([]string, len(m))
	for i, a := range m {
		keys[i] = a.Key
	}
	return keys
}

// Header is the lexed header block of one archive.
type Header struct {
	Metadata StationMetadata
	Footer   []string // non-metadata lines between the attributes and the column header
	Columns  []string
}

// LexHeader parses the first layout.HeaderLines lines of an archive. Metadata
// lines are split on their first colon; the comment marker and surrounding
// whitespace are stripped from both halves.
func LexHeader(lines []string, layout ArchiveLayout) (Header, error) {
	if len(lines) < layout.HeaderLines {
		return Header{}, &FormatError{
			Reason: fmt.Sprintf("header block has %d lines, expected %d", len(lines), layout.HeaderLines),
		}
	}
	lines = lines[:layout.HeaderLines]

	metaEnd := layout.MetadataLines()
	if metaEnd < 1 {
		return Header{}, &FormatError{Reason: "layout leaves no metadata lines"}
	}

	meta := make(StationMetadata, 0, metaEnd)
	seen := make(map[string]bool, metaEnd)
	for i, line := range lines[:metaEnd] {
		text := stripComment(line, layout.CommentMarker)
		key, value, ok := strings.Cut(text, ":")
		if !ok {
			return Header{}, &FormatError{Line: i + 1, Reason: fmt.Sprintf("metadata line %q has no colon", text)}
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return Header{}, &FormatError{Line: i + 1, Reason: "metadata line has an empty key"}
		}
		if seen[key] {
			return Header{}, &FormatError{Line: i + 1, Reason: fmt.Sprintf("metadata key %q declared twice", key)}
		}
		seen[key] = true
		meta = append(meta, Attribute{Key: key, Value: value})
	}

	footer := make([]string, 0, layout.FooterLines)
	for _, line := range lines[metaEnd : layout.HeaderLines-1] {
		footer = append(footer, stripComment(line, layout.CommentMarker))
	}

	columns := splitColumns(stripComment(lines[layout.HeaderLines-1], layout.CommentMarker), layout.ColumnDelimiter)
	if len(columns) < 2 {
		return Header{}, &FormatError{
			Line:   layout.HeaderLines,
			Reason: fmt.Sprintf("column header declares %d columns, need timestamp and measurement", len(columns)),
		}
	}

	return Header{Metadata: meta, Footer: footer, Columns: columns}, nil
}

func stripComment(line, marker string) string {
	line = strings.TrimRight(line, "\r\n")
	if marker != "" {
		line = strings.TrimPrefix(line, marker)
		// Tolerate a marker whose trailing space was lost.
		line = strings.TrimPrefix(line, strings.TrimSpace(marker))
	}
	return strings.TrimSpace(line)
}

func splitColumns(line, delimiter string) []string {
	if line == "" {
		return nil
	}
	parts := strings.Split(line, delimiter)
	columns := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			columns = append(columns, p)
		}
	}
	return columns
}
