// Command genmock writes synthetic CO-OPS style water-level archives for demos
// and fixtures. Readings follow a two-constituent tide with noise, and whole
// days can be replaced by the sentinel to exercise gap handling.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock \
//	  -stations 3 -days 730 -interval 1h -gap-rate 0.01
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/couchcryptid/tide-data-etl/internal/archive"
	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

// Principal lunar and lunisolar diurnal periods.
const (
	periodM2 = 12.4206 * float64(time.Hour)
	periodK1 = 23.9345 * float64(time.Hour)
)

type options struct {
	out      string
	stations int
	days     int
	interval time.Duration
	gapRate  float64
	seed     uint64
	start    time.Time
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "directory to write archives into")
	stations := flag.Int("stations", 3, "number of stations")
	days := flag.Int("days", 365, "days of readings per station")
	interval := flag.Duration("interval", time.Hour, "time between readings")
	gapRate := flag.Float64("gap-rate", 0, "probability that a day is replaced by sentinel readings")
	seed := flag.Uint64("seed", 1, "random seed")
	start := flag.String("start", "2020-01-01", "first reading date (UTC)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	startDate, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	opts := options{
		out:      *out,
		stations: *stations,
		days:     *days,
		interval: *interval,
		gapRate:  *gapRate,
		seed:     *seed,
		start:    startDate,
	}
	if err := opts.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	layout := domain.DefaultLayout()
	for i := range opts.stations {
		c := synthesize(rng, i, opts)
		id := c.Metadata[0].Value
		path := filepath.Join(opts.out, id+".gz")
		if err := archive.WriteFile(path, c, layout); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		printStats(id, c.Readings)
	}
	log.Printf("wrote %d archives to %s", opts.stations, opts.out)
	return nil
}

func (o options) validate() error {
	switch {
	case o.stations < 1:
		return fmt.Errorf("-stations must be at least 1")
	case o.days < 1:
		return fmt.Errorf("-days must be at least 1")
	case o.interval < time.Minute:
		return fmt.Errorf("-interval must be at least 1m")
	case o.gapRate < 0 || o.gapRate > 1:
		return fmt.Errorf("-gap-rate must be between 0 and 1")
	}
	return nil
}

func synthesize(rng *rand.Rand, n int, o options) archive.Contents {
	id := strconv.Itoa(9400000 + n*137)
	lat := 20 + rng.Float64()*28
	lon := -160 + rng.Float64()*90

	ampM2 := 0.4 + rng.Float64()*1.2
	ampK1 := 0.1 + rng.Float64()*0.5
	phase := rng.Float64() * 2 * math.Pi
	datum := rng.Float64() * 0.5

	end := o.start.AddDate(0, 0, o.days)
	var readings []archive.Reading
	var (
		day time.Time
		gap bool
	)
	for ts := o.start; ts.Before(end); ts = ts.Add(o.interval) {
		if d := ts.Truncate(24 * time.Hour); !d.Equal(day) {
			day, gap = d, rng.Float64() < o.gapRate
		}
		if gap {
			readings = append(readings, archive.Reading{Time: ts, Value: domain.DefaultSentinel})
			continue
		}
		t := float64(ts.Sub(o.start))
		v := datum +
			ampM2*math.Sin(2*math.Pi*t/periodM2+phase) +
			ampK1*math.Sin(2*math.Pi*t/periodK1) +
			rng.NormFloat64()*0.02
		readings = append(readings, archive.Reading{Time: ts, Value: math.Round(v*1000) / 1000})
	}

	return archive.Contents{
		Metadata: domain.StationMetadata{
			{Key: "NOS ID", Value: id},
			{Key: "Location Name", Value: fmt.Sprintf("SYNTHETIC STATION %02d", n+1)},
			{Key: "Latitude", Value: strconv.FormatFloat(lat, 'f', 5, 64)},
			{Key: "Longitude", Value: strconv.FormatFloat(lon, 'f', 5, 64)},
			{Key: "Horizontal Datum", Value: "WGS-84"},
			{Key: "Operator", Value: "genmock"},
		},
		Footer:   []string{fmt.Sprintf("Generated with seed %d", o.seed)},
		Readings: readings,
	}
}

func printStats(id string, readings []archive.Reading) {
	values := make(stats.Float64Data, 0, len(readings))
	gaps := 0
	for _, r := range readings {
		if r.Value == domain.DefaultSentinel {
			gaps++
			continue
		}
		values = append(values, r.Value)
	}
	lo, _ := values.Min()
	mean, _ := values.Mean()
	hi, _ := values.Max()
	log.Printf("%s: %d readings, %d sentinel, min %.3f mean %.3f max %.3f", id, len(readings), gaps, lo, mean, hi)
}
