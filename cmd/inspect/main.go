// Command inspect prints the header and summary statistics of PDATA.wgf4
// files, or compares two of them cell by cell.
//
// Usage:
//
//	go run ./cmd/inspect icon_d2/26.04.2024_19:00_1714158000/PDATA.wgf4
//	go run ./cmd/inspect -against other/PDATA.wgf4 -tolerance 0.001 icon_d2/.../PDATA.wgf4
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/couchcryptid/grid-delta-etl/internal/adapter/wgf4"
	"github.com/couchcryptid/grid-delta-etl/internal/domain"
)

func main() {
	against := flag.String("against", "", "second PDATA.wgf4 file to compare with")
	tolerance := flag.Float64("tolerance", 0, "largest absolute cell difference still considered equal")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if *against != "" {
		os.Exit(runCompare(os.Stdout, flag.Arg(0), *against, *tolerance))
	}

	code := 0
	for _, path := range flag.Args() {
		if c := runSummary(os.Stdout, path); c != 0 {
			code = c
		}
	}
	os.Exit(code)
}

// summary holds per-file statistics. Sentinel cells are counted as missing.
type summary struct {
	latCount  int
	lonCount  int
	// dimsMatch is false when the header bounds do not account for every
	// cell, which truncated negative coordinates can cause.
	dimsMatch bool
	cells     int
	valid     int
	min, max  float32
	mean      float64
}

func summarize(h domain.Header, cells []float32) summary {
	s := summary{cells: len(cells)}
	s.latCount, s.lonCount, s.dimsMatch = wgf4.Dimensions(h)
	s.dimsMatch = s.dimsMatch && s.latCount*s.lonCount == len(cells)

	var sum float64
	for _, v := range cells {
		if v == h.Sentinel || math.IsNaN(float64(v)) {
			continue
		}
		if s.valid == 0 || v < s.min {
			s.min = v
		}
		if s.valid == 0 || v > s.max {
			s.max = v
		}
		sum += float64(v)
		s.valid++
	}
	if s.valid > 0 {
		s.mean = sum / float64(s.valid)
	}
	return s
}

func runSummary(w io.Writer, path string) int {
	h, cells, err := wgf4.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", path, err)
		return 1
	}
	s := summarize(h, cells)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "file\t%s\n", path)
	fmt.Fprintf(tw, "lat\t%d .. %d step %d\n", h.LatMin, h.LatMax, h.StepLat)
	fmt.Fprintf(tw, "lon\t%d .. %d step %d\n", h.LonMin, h.LonMax, h.StepLon)
	fmt.Fprintf(tw, "multiplier\t%d\n", h.Multiplier)
	fmt.Fprintf(tw, "sentinel\t%g\n", h.Sentinel)
	if s.dimsMatch {
		fmt.Fprintf(tw, "grid\t%d x %d (%d cells)\n", s.latCount, s.lonCount, s.cells)
	} else {
		fmt.Fprintf(tw, "grid\t%d cells, header implies %d x %d\n", s.cells, s.latCount, s.lonCount)
	}
	fmt.Fprintf(tw, "valid\t%d\n", s.valid)
	if s.valid > 0 {
		fmt.Fprintf(tw, "min / max / mean\t%g / %g / %.4f\n", s.min, s.max, s.mean)
	}
	fmt.Fprintln(tw)
	tw.Flush() //nolint:errcheck // stdout
	return 0
}

// comparison describes how two frames differ.
type comparison struct {
	headerEqual  bool
	differing    int
	missingSkew  int // cells missing in exactly one file
	maxAbsDelta  float64
	firstDiffIdx int
}

func compare(ha domain.Header, a []float32, hb domain.Header, b []float32, tolerance float64) (comparison, error) {
	c := comparison{headerEqual: ha == hb, firstDiffIdx: -1}
	if len(a) != len(b) {
		return c, fmt.Errorf("cell counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		am, bm := a[i] == ha.Sentinel, b[i] == hb.Sentinel
		if am || bm {
			if am != bm {
				c.missingSkew++
				c.note(i)
			}
			continue
		}
		d := math.Abs(float64(a[i]) - float64(b[i]))
		if d > c.maxAbsDelta {
			c.maxAbsDelta = d
		}
		if d > tolerance {
			c.differing++
			c.note(i)
		}
	}
	return c, nil
}

func (c *comparison) note(i int) {
	if c.firstDiffIdx < 0 {
		c.firstDiffIdx = i
	}
}

func (c comparison) equal() bool {
	return c.headerEqual && c.differing == 0 && c.missingSkew == 0
}

func runCompare(w io.Writer, pathA, pathB string, tolerance float64) int {
	ha, a, err := wgf4.ReadFile(pathA)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", pathA, err)
		return 1
	}
	hb, b, err := wgf4.ReadFile(pathB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", pathB, err)
		return 1
	}

	c, err := compare(ha, a, hb, b, tolerance)
	if err != nil {
		fmt.Fprintf(w, "FAIL: %v\n", err)
		return 1
	}

	fmt.Fprintf(w, "header equal:     %t\n", c.headerEqual)
	fmt.Fprintf(w, "differing cells:  %d (tolerance %g)\n", c.differing, tolerance)
	fmt.Fprintf(w, "missing in one:   %d\n", c.missingSkew)
	fmt.Fprintf(w, "max |a-b|:        %g\n", c.maxAbsDelta)
	if c.firstDiffIdx >= 0 {
		if lat, lon, ok := wgf4.Dimensions(ha); ok && lat*lon == len(a) {
			fmt.Fprintf(w, "first difference: row %d col %d\n", c.firstDiffIdx/lon, c.firstDiffIdx%lon)
		}
	}

	if c.equal() {
		fmt.Fprintln(w, "PASS")
		return 0
	}
	fmt.Fprintln(w, "FAIL")
	return 1
}
