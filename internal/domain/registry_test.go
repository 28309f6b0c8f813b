package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuilder_DiscoveryOrder(t *testing.T) {
	b := NewRegistryBuilder(DefaultLayout())

	_, err := b.Add(testMetadata("9410170", "SAN DIEGO, SAN DIEGO BAY", "32.71419", "-117.17358"))
	require.NoError(t, err)
	_, err = b.Add(testMetadata("1612480", "MOKUOLOE", "21.43306", "-157.79"))
	require.NoError(t, err)

	reg := b.Registry()
	require.Equal(t, 2, reg.Len())

	ids := make([]string, 0, reg.Len())
	for _, st := range reg.Stations() {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{"9410170", "1612480"}, ids)

	st, ok := reg.Station("1612480")
	require.True(t, ok)
	assert.Equal(t, "MOKUOLOE", st.Name)
	assert.Equal(t, Geo{Lat: 21.43306, Lon: -157.79}, st.Geo)
	assert.True(t, reg.Has("9410170"))
	assert.False(t, reg.Has("0000000"))
}

func TestRegistryBuilder_KeyOrderMayDiffer(t *testing.T) {
	b := NewRegistryBuilder(DefaultLayout())
	_, err := b.Add(testMetadata("9410170", "A", "32.7", "-117.1"))
	require.NoError(t, err)

	reordered := testMetadata("9410230", "B", "32.8", "-117.2")
	reordered[0], reordered[3] = reordered[3], reordered[0]
	_, err = b.Add(reordered)
	require.NoError(t, err)

	// Table columns follow the first archive, so rows stay aligned.
	cols, rows := b.Registry().Table()
	want := [][]string{
		{"9410170", "A", "32.7", "-117.1", "WGS-84", "NOAA/NOS/CO-OPS", "32.7", "-117.1"},
		{"9410230", "B", "32.8", "-117.2", "WGS-84", "NOAA/NOS/CO-OPS", "32.8", "-117.2"},
	}
	assert.Equal(t, []string{"NOS ID", "Location Name", "Latitude", "Longitude", "Horizontal Datum", "Operator", "geo_lat", "geo_lon"}, cols)
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryBuilder_KeySetMismatch(t *testing.T) {
	b := NewRegistryBuilder(DefaultLayout())
	_, err := b.Add(testMetadata("9410170", "A", "32.7", "-117.1"))
	require.NoError(t, err)

	other := testMetadata("9410230", "B", "32.8", "-117.2")
	other[4].Key = "Vertical Datum"
	_, err = b.Add(other)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "9410230", se.StationID)
	assert.Equal(t, []string{"Horizontal Datum"}, se.Missing)
	assert.Equal(t, []string{"Vertical Datum"}, se.Unexpected)
	assert.Equal(t, 1, b.Registry().Len(), "failed archive must not leave a row")
}

func TestRegistryBuilder_MissingRequiredKey(t *testing.T) {
	b := NewRegistryBuilder(DefaultLayout())
	meta := testMetadata("9410170", "A", "32.7", "-117.1")
	meta[2].Key = "Lat"

	_, err := b.Add(meta)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"Latitude"}, se.Missing)
}

func TestRegistryBuilder_DuplicateStation(t *testing.T) {
	b := NewRegistryBuilder(DefaultLayout())
	_, err := b.Add(testMetadata("9410170", "A", "32.7", "-117.1"))
	require.NoError(t, err)
	_, err = b.Add(testMetadata("9410170", "A again", "32.7", "-117.1"))

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "9410170", se.StationID)
}

func TestRegistryBuilder_ParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		meta  StationMetadata
		field string
	}{
		{"non-numeric latitude", testMetadata("9410170", "A", "north", "-117.1"), "Latitude"},
		{"non-numeric longitude", testMetadata("9410170", "A", "32.7", ""), "Longitude"},
		{"latitude out of range", testMetadata("9410170", "A", "132.7", "-117.1"), "Latitude"},
		{"NaN longitude", testMetadata("9410170", "A", "32.7", "NaN"), "Longitude"},
		{"non-numeric station id", testMetadata("SD-1", "A", "32.7", "-117.1"), "NOS ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistryBuilder(DefaultLayout()).Add(tt.meta)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.field, pe.Field)
		})
	}
}

func TestSensorRegistry_NilSafe(t *testing.T) {
	var reg *SensorRegistry

	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.Stations())
	assert.False(t, reg.Has("9410170"))
	_, ok := reg.Station("9410170")
	assert.False(t, ok)
	assert.Empty(t, reg.Keys())

	columns, rows := reg.Table()
	assert.Equal(t, []string{"geo_lat", "geo_lon"}, columns)
	assert.Empty(t, rows)
}
