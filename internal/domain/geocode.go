package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding attaches a place name to every station in the registry.
// A nil geocoder leaves the registry untouched. Lookup failures are logged and
// recorded in GeoSource; they never fail the batch.
func EnrichWithGeocoding(ctx context.Context, registry *SensorRegistry, geocoder Geocoder, logger *slog.Logger) {
	if geocoder == nil || registry == nil {
		return
	}
	for i := range registry.stations {
		if ctx.Err() != nil {
			return
		}
		registry.stations[i] = enrichStation(ctx, registry.stations[i], geocoder, logger)
	}
}

func enrichStation(ctx context.Context, st Station, geocoder Geocoder, logger *slog.Logger) Station {
	if st.Geo.Lat == 0 && st.Geo.Lon == 0 {
		st.GeoSource = "original"
		return st
	}

	result, err := geocoder.ReverseGeocode(ctx, st.Geo.Lat, st.Geo.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"station_id", st.ID,
			"lat", st.Geo.Lat,
			"lon", st.Geo.Lon,
			"error", err,
		)
		st.GeoSource = "failed"
		return st
	}
	if result.FormattedAddress == "" {
		st.GeoSource = "original"
		return st
	}

	st.PlaceName = result.PlaceName
	st.FormattedAddress = result.FormattedAddress
	st.GeoConfidence = result.Confidence
	st.GeoSource = "reverse"
	return st
}
