package domain

import (
	"fmt"
	"math"
)

// Run-wide grid constants.
const (
	DefaultMultiplier int32   = 100
	DefaultSentinel   float32 = -100500.0
)

// Cell is a grid value that is either present or missing.
type Cell struct {
	v  float64
	ok bool
}

// Valid returns a present cell holding v.
func Valid(v float64) Cell { return Cell{v: v, ok: true} }

// Missing returns a cell without a value.
func Missing() Cell { return Cell{} }

// Value returns the cell value and whether it is present.
func (c Cell) Value() (float64, bool) { return c.v, c.ok }

// IsMissing reports whether the cell has no value.
func (c Cell) IsMissing() bool { return !c.ok }

// Header describes the grid extent in fixed point.
type Header struct {
	LatMin     int32   `json:"lat_min"`
	LatMax     int32   `json:"lat_max"`
	LonMin     int32   `json:"lon_min"`
	LonMax     int32   `json:"lon_max"`
	StepLat    int32   `json:"step_lat"`
	StepLon    int32   `json:"step_lon"`
	Multiplier int32   `json:"multiplier"`
	Sentinel   float32 `json:"sentinel"`
}

// RawGrid is what a decoder returns for one field/level/time selection.
// Values is indexed [lat][lon].
type RawGrid struct {
	Lats   []float64
	Lons   []float64
	Values [][]float64
}

// GridFrame is one extracted grid. Cells are row-major, latitude outer.
type GridFrame struct {
	Name     CanonicalName
	Header   Header
	LatCount int
	LonCount int
	Cells    []Cell
}

// Quantize converts v to fixed point, truncating toward zero.
func Quantize(v float64, multiplier int32) int32 {
	return int32(math.Trunc(v * float64(multiplier)))
}

// BuildFrame quantizes the grid bounds and copies every finite value into a
// dense row-major cell array. Non-finite values become missing cells.
func BuildFrame(name CanonicalName, raw RawGrid, multiplier int32, sentinel float32) (GridFrame, error) {
	nLat, nLon := len(raw.Lats), len(raw.Lons)
	if nLat < 2 || nLon < 2 {
		return GridFrame{}, fmt.Errorf("%w: %s: need at least 2 samples per axis, got %dx%d", ErrExtract, name, nLat, nLon)
	}
	if len(raw.Values) != nLat {
		return GridFrame{}, fmt.Errorf("%w: %s: %d value rows for %d latitudes", ErrExtract, name, len(raw.Values), nLat)
	}

	q := func(v float64) int32 { return Quantize(v, multiplier) }
	header := Header{
		LatMin:     q(raw.Lats[0]),
		LatMax:     q(raw.Lats[nLat-1]),
		LonMin:     q(raw.Lons[0]),
		LonMax:     q(raw.Lons[nLon-1]),
		StepLat:    q(raw.Lats[1]) - q(raw.Lats[0]),
		StepLon:    q(raw.Lons[1]) - q(raw.Lons[0]),
		Multiplier: multiplier,
		Sentinel:   sentinel,
	}

	cells := make([]Cell, nLat*nLon)
	pos := 0
	for i, row := range raw.Values {
		if len(row) != nLon {
			return GridFrame{}, fmt.Errorf("%w: %s: row %d has %d values, want %d", ErrExtract, name, i, len(row), nLon)
		}
		for _, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				cells[pos] = Valid(v)
			}
			pos++
		}
	}

	return GridFrame{
		Name:     name,
		Header:   header,
		LatCount: nLat,
		LonCount: nLon,
		Cells:    cells,
	}, nil
}

// Len returns the number of cells the frame's dimensions describe.
func (f GridFrame) Len() int { return f.LatCount * f.LonCount }
