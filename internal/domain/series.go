package domain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Observation is one station-tagged measurement. Value is in meters and may
// still equal the missing-value sentinel before curation.
type Observation struct {
	StationID string    `json:"station_id"`
	Time      time.Time `json:"time"`
	Value     float64   `json:"value"`
}

// RawSeries is the concatenation of every archive's observations, in
// archive-then-row order.
type RawSeries []Observation

// timestampLayouts are the ISO-8601 shapes seen in CO-OPS exports, tried in order.
// Layouts without a zone are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04-0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses a date-only or full-instant ISO-8601 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("not an ISO-8601 date or instant")
}

// ParseBody reads the tab-delimited body of one archive and tags every row
// with stationID. Only the first two columns (timestamp, primary measurement)
// are kept. firstLine is the 1-based archive line number of the first body row
// and is used in error positions.
//
// Blank lines are not rows. Any other row that does not parse fails the whole
// body: aggregation downstream assumes a fully-parsed series.
func ParseBody(r io.Reader, columns []string, stationID string, firstLine int, layout ArchiveLayout) (RawSeries, error) {
	if len(columns) < 2 {
		return nil, &FormatError{Reason: fmt.Sprintf("need timestamp and measurement columns, got %d", len(columns))}
	}
	timeCol, valueCol := columns[0], columns[1]

	var series RawSeries
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := firstLine - 1
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		fields := splitBodyRow(text, layout)
		if len(fields) < 2 {
			return nil, &ParseError{Line: line, Field: valueCol, Value: text, Err: errors.New("row has fewer than two fields")}
		}

		ts, err := ParseTimestamp(fields[0])
		if err != nil {
			return nil, &ParseError{Line: line, Field: timeCol, Value: fields[0], Err: err}
		}
		raw := strings.TrimSpace(fields[1])
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &ParseError{Line: line, Field: valueCol, Value: raw, Err: err}
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, &ParseError{Line: line, Field: valueCol, Value: raw, Err: errors.New("not a finite number")}
		}

		series = append(series, Observation{StationID: stationID, Time: ts, Value: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return series, nil
}

// splitBodyRow splits on the body delimiter, falling back to the column
// delimiter for rows that were exported with the header's convention.
func splitBodyRow(text string, layout ArchiveLayout) []string {
	if strings.Contains(text, layout.BodyDelimiter) {
		return strings.SplitN(text, layout.BodyDelimiter, 3)
	}
	return strings.SplitN(text, layout.ColumnDelimiter, 3)
}
