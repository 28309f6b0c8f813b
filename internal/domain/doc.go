// Package domain models NOAA CO-OPS tide-station archives and the curation of
// their water-level series.
//
// # Data Source
//
// Archives are per-station exports from the NOAA Center for Operational
// Oceanographic Products and Services (CO-OPS), downloaded as gzip-compressed
// UTF-8 text. One archive holds one station.
//
// # Archive Layout
//
// The first ten lines form a comment block, each line prefixed with "// ":
//
//	// NOS ID: 9410170
//	// Location Name: SAN DIEGO, SAN DIEGO BAY
//	// Latitude: 32.71419
//	// Longitude: -117.17358
//	// Horizontal Datum: WGS-84
//	// Operator: NOAA/NOS/CO-OPS
//	// <footer line>
//	// <footer line>
//	// <footer line>
//	// datetime [ISO8601], waterlevel_quality_controlled [m], sigma [m]
//
// Leading lines are "Key: Value" attributes split on the first colon, so
// values may themselves contain colons. A fixed band of footer lines
// (free text such as units or disclaimers) sits between the attributes and the
// column header. The column header is comma-delimited, while the body that
// follows is tab-delimited; only the first two body columns (timestamp,
// primary measurement) are consumed. See [ArchiveLayout] for the knobs.
//
// Timestamps are ISO-8601, either date-only ("2020-01-01") or full instants
// ("2020-01-01T00:00Z"). Instants without a zone are UTC.
//
// # Missing Values
//
// 9999 is the CO-OPS sentinel for a missing or rejected reading. It is removed
// by exact match before any statistic is computed ([DefaultSentinel]).
//
// # Curation
//
// Surviving observations are grouped per station into calendar buckets
// (weeks or months, UTC-aligned so starts are comparable across stations).
// Each bucket carries the unweighted min, mean and max of its readings, and
// each of those three series is smoothed with a trailing rolling mean over the
// station's own buckets. Buckets without readings are omitted, never
// zero-filled, so rolling windows count buckets rather than calendar time.
package domain
