package domain

import (
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Station is one registry row: the attributes an archive declared plus the
// fields derived from them.
type Station struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Geo      Geo             `json:"geo"`
	Metadata StationMetadata `json:"metadata"`

	// Geocoding enrichment fields.
	PlaceName        string  `json:"place_name,omitempty"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	GeoConfidence    float64 `json:"geo_confidence,omitempty"`
	GeoSource        string  `json:"geo_source,omitempty"` // "reverse", "original", "failed"
}

// SensorRegistry is the ordered station directory of one batch. Order is
// archive discovery order and is relied on by downstream consumers.
type SensorRegistry struct {
	keys     []string
	stations []Station
	index    map[string]int
}

// Len returns the number of registered stations.
func (r *SensorRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.stations)
}

// Stations returns a copy of the registry rows in discovery order.
func (r *SensorRegistry) Stations() []Station {
	if r == nil {
		return nil
	}
	return slices.Clone(r.stations)
}

// Station looks up a station by id.
func (r *SensorRegistry) Station(id string) (Station, bool) {
	if r == nil {
		return Station{}, false
	}
	i, ok := r.index[id]
	if !ok {
		return Station{}, false
	}
	return r.stations[i], true
}

// Has reports whether a station id is registered.
func (r *SensorRegistry) Has(id string) bool {
	if r == nil {
		return false
	}
	_, ok := r.index[id]
	return ok
}

// Keys returns the metadata key set shared by every archive, in the order the
// first archive declared it.
func (r *SensorRegistry) Keys() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.keys)
}

// Table renders the registry as a rectangular table: one column per metadata
// key followed by the derived coordinate columns.
func (r *SensorRegistry) Table() (columns []string, rows [][]string) {
	if r == nil {
		return []string{"geo_lat", "geo_lon"}, nil
	}
	columns = append(slices.Clone(r.keys), "geo_lat", "geo_lon")
	rows = make([][]string, 0, len(r.stations))
	for _, st := range r.stations {
		row := make([]string, 0, len(columns))
		for _, k := range r.keys {
			v, _ := st.Metadata.Get(k)
			row = append(row, v)
		}
		row = append(row,
			strconv.FormatFloat(st.Geo.Lat, 'f', -1, 64),
			strconv.FormatFloat(st.Geo.Lon, 'f', -1, 64),
		)
		rows = append(rows, row)
	}
	return columns, rows
}

// RegistryBuilder folds per-archive metadata into a SensorRegistry. The first
// archive fixes the key set; every later archive must declare the same set,
// in any order.
type RegistryBuilder struct {
	layout   ArchiveLayout
	registry *SensorRegistry
	keySet   map[string]bool
}

// NewRegistryBuilder creates an empty builder for archives of the given layout.
func NewRegistryBuilder(layout ArchiveLayout) *RegistryBuilder {
	return &RegistryBuilder{
		layout:   layout,
		registry: &SensorRegistry{index: make(map[string]int)},
	}
}

// Add appends the station described by meta and returns it.
func (b *RegistryBuilder) Add(meta StationMetadata) (Station, error) {
	if b.keySet == nil {
		if err := b.requireKeys(meta); err != nil {
			return Station{}, err
		}
	} else if err := b.checkKeySet(meta); err != nil {
		return Station{}, err
	}

	st, err := b.newStation(meta)
	if err != nil {
		return Station{}, err
	}
	if b.registry.Has(st.ID) {
		return Station{}, &SchemaError{StationID: st.ID, Reason: "station declared by more than one archive"}
	}

	if b.keySet == nil {
		b.keySet = make(map[string]bool, len(meta))
		for _, k := range meta.Keys() {
			b.keySet[k] = true
		}
		b.registry.keys = meta.Keys()
	}

	b.registry.index[st.ID] = len(b.registry.stations)
	b.registry.stations = append(b.registry.stations, st)
	return st, nil
}

// Registry returns the registry built so far.
func (b *RegistryBuilder) Registry() *SensorRegistry {
	return b.registry
}

func (b *RegistryBuilder) requireKeys(meta StationMetadata) error {
	var missing []string
	for _, k := range []string{b.layout.StationIDKey, b.layout.LatitudeKey, b.layout.LongitudeKey} {
		if _, ok := meta.Get(k); !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing, Reason: "required attributes not declared"}
	}
	return nil
}

func (b *RegistryBuilder) checkKeySet(meta StationMetadata) error {
	var missing, unexpected []string
	declared := make(map[string]bool, len(meta))
	for _, a := range meta {
		declared[a.Key] = true
		if !b.keySet[a.Key] {
			unexpected = append(unexpected, a.Key)
		}
	}
	for _, k := range b.registry.keys {
		if !declared[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	id, _ := meta.Get(b.layout.StationIDKey)
	return &SchemaError{
		StationID:  id,
		Missing:    missing,
		Unexpected: unexpected,
		Reason:     "metadata key set differs from the first archive",
	}
}

func (b *RegistryBuilder) newStation(meta StationMetadata) (Station, error) {
	id, _ := meta.Get(b.layout.StationIDKey)
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return Station{}, &ParseError{Field: b.layout.StationIDKey, Value: id, Err: err}
	}

	lat, err := parseCoordinate(meta, b.layout.LatitudeKey, 90)
	if err != nil {
		return Station{}, err
	}
	lon, err := parseCoordinate(meta, b.layout.LongitudeKey, 180)
	if err != nil {
		return Station{}, err
	}

	name, _ := meta.Get(b.layout.NameKey)
	return Station{
		ID:       id,
		Name:     name,
		Geo:      Geo{Lat: lat, Lon: lon},
		Metadata: slices.Clone(meta),
	}, nil
}

func parseCoordinate(meta StationMetadata, key string, limit float64) (float64, error) {
	raw, _ := meta.Get(key)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ParseError{Field: key, Value: raw, Err: err}
	}
	if math.IsNaN(v) || v < -limit || v > limit {
		return 0, &ParseError{Field: key, Value: raw, Err: fmt.Errorf("out of range [-%g, %g]", limit, limit)}
	}
	return v, nil
}
