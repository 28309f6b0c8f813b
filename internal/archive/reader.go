// Package archive reads, writes and inspects gzip-compressed station archives.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

// Archive is one decoded archive: its lexed header and its station-tagged rows.
type Archive struct {
	Path         string
	StationID    string
	Header       domain.Header
	Observations domain.RawSeries
}

// Read decodes a single gzip archive. The file and the gzip stream are closed
// on every return path.
func Read(ctx context.Context, path string, layout domain.ArchiveLayout) (Archive, error) {
	f, err := openFile(path)
	if err != nil {
		return Archive{}, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(&contextReader{ctx: ctx, r: f})
	if err != nil {
		return Archive{}, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	return decode(zr, path, layout)
}

func decode(r io.Reader, path string, layout domain.ArchiveLayout) (Archive, error) {
	br := bufio.NewReader(r)
	lines, err := readLines(br, layout.HeaderLines)
	if err != nil {
		return Archive{}, err
	}

	header, err := domain.LexHeader(lines, layout)
	if err != nil {
		return Archive{}, err
	}

	stationID, ok := header.Metadata.Get(layout.StationIDKey)
	if !ok {
		return Archive{}, &domain.SchemaError{
			Missing: []string{layout.StationIDKey},
			Reason:  "archive does not declare a station id",
		}
	}

	series, err := domain.ParseBody(br, header.Columns, stationID, layout.HeaderLines+1, layout)
	if err != nil {
		return Archive{}, err
	}

	return Archive{
		Path:         path,
		StationID:    stationID,
		Header:       header,
		Observations: series,
	}, nil
}

// readLines reads up to n lines. A stream shorter than n lines is not an
// error here; the lexer reports it with the expected count.
func readLines(br *bufio.Reader, n int) ([]string, error) {
	lines := make([]string, 0, n)
	for len(lines) < n {
		line, err := br.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	return lines, nil
}

// openFile opens pathname and refuses directories.
func openFile(pathname string) (*os.File, error) {
	f, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open %s: is a directory", pathname)
	}
	return f, nil
}

// contextReader stops a read loop once its context is done, so a cancelled
// batch does not keep decompressing large archives.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
