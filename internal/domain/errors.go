package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidOptions is returned when curation options cannot produce a
// meaningful result (unknown bucket width, non-positive rolling window).
var ErrInvalidOptions = errors.New("invalid curation options")

// FormatError reports a malformed archive header block.
type FormatError struct {
	Line   int // 1-based line number within the archive, 0 when not line-specific
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("format error at line %d: %s", e.Line, e.Reason)
	}
	return "format error: " + e.Reason
}

// SchemaError reports archives in one batch that disagree on their metadata
// key set, or a registry that is missing a required attribute.
type SchemaError struct {
	StationID  string
	Missing    []string
	Unexpected []string
	Reason     string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema error")
	if e.StationID != "" {
		fmt.Fprintf(&b, " for station %s", e.StationID)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing keys %q", e.Missing)
	}
	if len(e.Unexpected) > 0 {
		fmt.Fprintf(&b, "; unexpected keys %q", e.Unexpected)
	}
	return b.String()
}

// ParseError reports a numeric or timestamp conversion failure.
type ParseError struct {
	Line  int    // 1-based line number within the archive, 0 for metadata attributes
	Field string // column or attribute name
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s %q: %v", e.Line, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("parse error: %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReferentialIntegrityError reports an observation tagged with a station id
// that is not present in the registry.
type ReferentialIntegrityError struct {
	StationID string
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("observation references unregistered station %q", e.StationID)
}

// EmptyInputError reports an archive directory that yielded no archives.
type EmptyInputError struct {
	Dir     string
	Pattern string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("no archives matching %q in %s", e.Pattern, e.Dir)
}

// ArchiveError tags a failure with the archive it came from. The underlying
// error keeps its kind and stays reachable through errors.As.
type ArchiveError struct {
	File string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.File, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// ErrorKind classifies an error for metrics labels and batch reports.
// Unclassified errors map to "internal".
func ErrorKind(err error) string {
	var (
		formatErr *FormatError
		schemaErr *SchemaError
		parseErr  *ParseError
		refErr    *ReferentialIntegrityError
		emptyErr  *EmptyInputError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &formatErr):
		return "format"
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &refErr):
		return "referential_integrity"
	case errors.As(err, &emptyErr):
		return "empty_input"
	case errors.Is(err, ErrInvalidOptions):
		return "options"
	default:
		return "internal"
	}
}
