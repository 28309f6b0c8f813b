// Command validate decodes every archive in a directory and reports, per file,
// whether it would be accepted into a batch. Unlike the service it does not
// stop at the first bad archive, so a partially broken directory can be
// repaired in one pass.
//
// Usage:
//
//	go run ./cmd/validate -dir data/archives -pattern '*.gz'
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/tide-data-etl/internal/archive"
	"github.com/couchcryptid/tide-data-etl/internal/config"
	"github.com/couchcryptid/tide-data-etl/internal/domain"
)

func main() {
	dir := flag.String("dir", "", "archive directory")
	pattern := flag.String("pattern", "*.gz", "archive file glob")
	layoutFile := flag.String("layout", "", "optional YAML archive layout")
	sentinel := flag.Float64("sentinel", domain.DefaultSentinel, "missing-value placeholder")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, *dir, *pattern, *layoutFile, *sentinel)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, dir, pattern, layoutFile string, sentinel float64) int {
	layout, err := config.LoadLayout(layoutFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	files, err := archive.Discover(dir, pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	reports, err := archive.Inspect(ctx, files, layout, sentinel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	fmt.Printf("=== Archive Validation: %s (%s) ===\n\n", dir, pattern)
	failed := printReports(reports)

	fmt.Println()
	if failed > 0 {
		fmt.Printf("FAIL: %d of %d archives rejected\n", failed, len(reports))
		return 1
	}
	fmt.Printf("PASS: %d archives\n", len(reports))
	return 0
}

func printReports(reports []archive.FileReport) int {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATION\tNAME\tROWS\tSENTINEL\tFIRST\tLAST\tSTATUS")

	failed := 0
	for _, r := range reports {
		status := "ok"
		if !r.OK() {
			failed++
			status = fmt.Sprintf("%s: %v", domain.ErrorKind(r.Err), r.Err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.File, dash(r.StationID), dash(r.Name), r.Rows, r.Sentinels,
			formatTime(r.First), formatTime(r.Last), status)
	}
	_ = tw.Flush()

	if len(reports) > 0 && reports[0].OK() {
		fmt.Printf("\ncolumns: %s\n", strings.Join(reports[0].Columns, ", "))
	}
	return failed
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02T15:04Z")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
