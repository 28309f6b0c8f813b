package archive

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

// DefaultColumns is the column header CO-OPS water-level exports carry.
var DefaultColumns = []string{"datetime [ISO8601]", "waterlevel_quality_controlled [m]", "sigma [m]"}

// Contents describes an archive to write.
type Contents struct {
	Metadata domain.StationMetadata
	Footer   []string // free-form lines; padded or truncated to the layout's footer count
	Columns  []string // defaults to DefaultColumns
	Readings []Reading
}

// Reading is one body row. Columns past the value are written as zero.
type Reading struct {
	Time  time.Time
	Value float64
}

// Write renders c as a gzip archive in the given layout.
func Write(w io.Writer, c Contents, layout domain.ArchiveLayout) error {
	if want := layout.MetadataLines(); len(c.Metadata) != want {
		return fmt.Errorf("archive needs %d metadata attributes, got %d", want, len(c.Metadata))
	}
	columns := c.Columns
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	if len(columns) < 2 {
		return fmt.Errorf("archive needs at least 2 columns, got %d", len(columns))
	}

	zw := gzip.NewWriter(w)
	var b strings.Builder
	marker := layout.CommentMarker

	for _, a := range c.Metadata {
		fmt.Fprintf(&b, "%s%s: %s\n", marker, a.Key, a.Value)
	}
	for i := 0; i < layout.FooterLines; i++ {
		line := ""
		if i < len(c.Footer) {
			line = c.Footer[i]
		}
		b.WriteString(marker + line + "\n")
	}
	b.WriteString(marker + strings.Join(columns, layout.ColumnDelimiter+" ") + "\n")

	extra := strings.Repeat(layout.BodyDelimiter+"0", len(columns)-2)
	for _, r := range c.Readings {
		b.WriteString(r.Time.UTC().Format("2006-01-02T15:04Z"))
		b.WriteString(layout.BodyDelimiter)
		b.WriteString(strconv.FormatFloat(r.Value, 'f', -1, 64))
		b.WriteString(extra)
		b.WriteByte('\n')
	}

	if _, err := io.WriteString(zw, b.String()); err != nil {
		zw.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	return nil
}

// WriteFile writes c to path, replacing any existing file.
func WriteFile(path string, c Contents, layout domain.ArchiveLayout) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, c, layout); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
