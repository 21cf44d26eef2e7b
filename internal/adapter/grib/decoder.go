// Package grib adapts a GRIB2 decoding library to the pipeline's decoder
// contract: latitude samples, longitude samples and a [lat][lon] value matrix
// for one selected field.
package grib

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/grid-delta-etl/internal/domain"
	"github.com/nilsmagnus/grib/griblib"
)

// undefined is the conventional GRIB "no value" marker written for masked points.
const undefined = 9.999e20

// microDegrees is the number of template 3.0 coordinate units per degree.
const microDegrees = 1e6

// Selector picks the message to decode by WMO discipline and parameter.
type Selector struct {
	Discipline int
	Category   int
	Parameter  int
}

// TotalPrecipitation selects discipline 0, category 1, number 52.
var TotalPrecipitation = Selector{Discipline: 0, Category: 1, Parameter: 52}

// Decoder implements pipeline.Decoder for regular latitude/longitude GRIB2 files.
type Decoder struct {
	sel Selector
}

// NewDecoder creates a Decoder for the given field.
func NewDecoder(sel Selector) *Decoder {
	return &Decoder{sel: sel}
}

// Decode reads the first message matching the selector, or the first message
// when none matches, and returns its grid.
func (d *Decoder) Decode(path string) (domain.RawGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RawGrid{}, err
	}
	defer f.Close()

	messages, err := griblib.ReadMessages(f)
	if err != nil {
		return domain.RawGrid{}, fmt.Errorf("read grib messages: %w", err)
	}
	if len(messages) == 0 {
		return domain.RawGrid{}, errors.New("no grib messages")
	}

	msg := messages[0]
	for _, m := range messages {
		if d.matches(m) {
			msg = m
			break
		}
	}

	geom, err := geometryOf(msg.Section3.Definition)
	if err != nil {
		return domain.RawGrid{}, err
	}
	return buildRaw(geom, msg.Data())
}

func (d *Decoder) matches(m *griblib.Message) bool {
	p := m.Section4.ProductDefinitionTemplate
	return int(m.Section0.Discipline) == d.sel.Discipline &&
		int(p.ParameterCategory) == d.sel.Category &&
		int(p.ParameterNumber) == d.sel.Parameter
}

// geometry describes a regular lat/lon grid in micro-degrees.
type geometry struct {
	ni, nj   int
	la1, lo1 int64
	di, dj   int64
	scan     uint8
}

func geometryOf(def interface{}) (geometry, error) {
	var g griblib.Grid0
	switch v := def.(type) {
	case griblib.Grid0:
		g = v
	case *griblib.Grid0:
		if v == nil {
			return geometry{}, errors.New("empty grid definition")
		}
		g = *v
	default:
		return geometry{}, fmt.Errorf("unsupported grid definition %T, want regular lat/lon", def)
	}
	return geometry{
		ni:   int(g.Ni),
		nj:   int(g.Nj),
		la1:  int64(g.La1),
		lo1:  int64(g.Lo1),
		di:   int64(g.Di),
		dj:   int64(g.Dj),
		scan: uint8(g.ScanningMode),
	}, nil
}

// Scanning mode flags (GRIB2 code table 3.4).
const (
	scanNegativeI    = 0x80
	scanPositiveJ    = 0x40
	scanJConsecutive = 0x20
)

// buildRaw expands the grid geometry into coordinate samples and splits data
// into latitude rows. Coordinates are computed in integer micro-degrees so
// they do not drift along the axis. Longitudes are normalized to (-180, 180].
func buildRaw(g geometry, data []float64) (domain.RawGrid, error) {
	if g.ni <= 0 || g.nj <= 0 {
		return domain.RawGrid{}, fmt.Errorf("invalid grid size %dx%d", g.nj, g.ni)
	}
	if g.scan&scanJConsecutive != 0 {
		return domain.RawGrid{}, errors.New("column-major scanning is not supported")
	}
	if len(data) != g.ni*g.nj {
		return domain.RawGrid{}, fmt.Errorf("grid declares %dx%d points, data has %d", g.nj, g.ni, len(data))
	}

	dLat := -g.dj
	if g.scan&scanPositiveJ != 0 {
		dLat = g.dj
	}
	dLon := g.di
	if g.scan&scanNegativeI != 0 {
		dLon = -g.di
	}

	lats := make([]float64, g.nj)
	for j := range lats {
		lats[j] = float64(g.la1+int64(j)*dLat) / microDegrees
	}
	lons := make([]float64, g.ni)
	for i := range lons {
		lon := g.lo1 + int64(i)*dLon
		if lon > 180*microDegrees {
			lon -= 360 * microDegrees
		}
		lons[i] = float64(lon) / microDegrees
	}

	values := make([][]float64, g.nj)
	for j := range values {
		row := make([]float64, g.ni)
		copy(row, data[j*g.ni:(j+1)*g.ni])
		for i, v := range row {
			if math.Abs(v) >= undefined {
				row[i] = math.NaN()
			}
		}
		values[j] = row
	}

	return domain.RawGrid{Lats: lats, Lons: lons, Values: values}, nil
}
