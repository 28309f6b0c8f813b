package domain

import (
	"errors"
	"fmt"
)

// ArchiveLayout describes where things live inside a tide-station archive.
// The defaults reproduce the NOAA CO-OPS export layout; see the package doc.
type ArchiveLayout struct {
	// HeaderLines is the size of the comment block at the top of the file.
	// The last line of the block is the column header.
	HeaderLines int `yaml:"header_lines"`
	// FooterLines is the number of non-metadata lines sitting between the
	// "Key: Value" lines and the column header.
	FooterLines int `yaml:"footer_lines"`

	CommentMarker   string `yaml:"comment_marker"`
	ColumnDelimiter string `yaml:"column_delimiter"`
	BodyDelimiter   string `yaml:"body_delimiter"`

	StationIDKey string `yaml:"station_id_key"`
	NameKey      string `yaml:"name_key"`
	LatitudeKey  string `yaml:"latitude_key"`
	LongitudeKey string `yaml:"longitude_key"`
}

// DefaultLayout returns the layout of the archives published by NOAA CO-OPS.
func DefaultLayout() ArchiveLayout {
	return ArchiveLayout{
		HeaderLines:     10,
		FooterLines:     3,
		CommentMarker:   "// ",
		ColumnDelimiter: ",",
		BodyDelimiter:   "\t",
		StationIDKey:    "NOS ID",
		NameKey:         "Location Name",
		LatitudeKey:     "Latitude",
		LongitudeKey:    "Longitude",
	}
}

// MetadataLines is the number of "Key: Value" lines at the start of the header block.
func (l ArchiveLayout) MetadataLines() int {
	return l.HeaderLines - 1 - l.FooterLines
}

// Validate reports whether the layout leaves room for at least one metadata
// line and names every attribute the registry depends on.
func (l ArchiveLayout) Validate() error {
	if l.HeaderLines < 2 {
		return fmt.Errorf("header_lines must be at least 2, got %d", l.HeaderLines)
	}
	if l.FooterLines < 0 {
		return fmt.Errorf("footer_lines must not be negative, got %d", l.FooterLines)
	}
	if l.MetadataLines() < 1 {
		return fmt.Errorf("header_lines %d with footer_lines %d leaves no metadata lines", l.HeaderLines, l.FooterLines)
	}
	if l.ColumnDelimiter == "" || l.BodyDelimiter == "" {
		return errors.New("column_delimiter and body_delimiter are required")
	}
	if l.StationIDKey == "" || l.LatitudeKey == "" || l.LongitudeKey == "" {
		return errors.New("station_id_key, latitude_key and longitude_key are required")
	}
	return nil
}
