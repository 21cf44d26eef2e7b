// Package wgf4 reads and writes the WGF4 binary grid format.
//
// Layout, all little-endian:
//
//	int32   lat_min
//	int32   lat_max
//	int32   lon_min
//	int32   lon_max
//	int32   step_lat
//	int32   step_lon
//	int32   multiplier
//	float32 sentinel
//	float32 × lat_count × lon_count, latitude outer
package wgf4

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/couchcryptid/grid-delta-etl/internal/domain"
)

// HeaderSize is the encoded header length in bytes.
const HeaderSize = 8 * 4

type wireHeader struct {
	LatMin     int32
	LatMax     int32
	LonMin     int32
	LonMax     int32
	StepLat    int32
	StepLon    int32
	Multiplier int32
	Sentinel   float32
}

// Encode writes the header followed by one float32 per cell. Missing cells are
// written as the header's sentinel.
func Encode(w io.Writer, h domain.Header, cells []domain.Cell) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, wireHeader(h)); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	var buf [4]byte
	for _, c := range cells {
		v := h.Sentinel
		if f, ok := c.Value(); ok {
			v = float32(f)
		}
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
	}
	return bw.Flush()
}

// Decode reads a header and the whole payload. The payload length must be a
// multiple of four bytes.
func Decode(r io.Reader) (domain.Header, []float32, error) {
	var wh wireHeader
	if err := binary.Read(r, binary.LittleEndian, &wh); err != nil {
		return domain.Header{}, nil, fmt.Errorf("decode header: %w", err)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return domain.Header{}, nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(body)%4 != 0 {
		return domain.Header{}, nil, errors.New("decode payload: length is not a multiple of 4")
	}

	values := make([]float32, len(body)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return domain.Header(wh), values, nil
}

// Dimensions derives the grid size from a header: the number of latitude and
// longitude samples implied by the bounds and steps.
func Dimensions(h domain.Header) (latCount, lonCount int, ok bool) {
	if h.StepLat == 0 || h.StepLon == 0 {
		return 0, 0, false
	}
	latCount = int((h.LatMax-h.LatMin)/h.StepLat) + 1
	lonCount = int((h.LonMax-h.LonMin)/h.StepLon) + 1
	return latCount, lonCount, latCount > 0 && lonCount > 0
}
