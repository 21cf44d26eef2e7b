package wgf4

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/grid-delta-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHeader = domain.Header{
	LatMin:     4318,
	LatMax:     5062,
	LonMin:     -394,
	LonMax:     2062,
	StepLat:    2,
	StepLon:    2,
	Multiplier: 100,
	Sentinel:   domain.DefaultSentinel,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncode_ByteLayout(t *testing.T) {
	var buf bytes.Buffer
	cells := []domain.Cell{domain.Valid(1.25), domain.Missing()}

	require.NoError(t, Encode(&buf, testHeader, cells))

	b := buf.Bytes()
	require.Len(t, b, HeaderSize+2*4)

	le := binary.LittleEndian
	assert.Equal(t, uint32(4318), le.Uint32(b[0:]))
	assert.Equal(t, uint32(5062), le.Uint32(b[4:]))
	assert.Equal(t, int32(-394), int32(le.Uint32(b[8:])))
	assert.Equal(t, uint32(2062), le.Uint32(b[12:]))
	assert.Equal(t, uint32(2), le.Uint32(b[16:]))
	assert.Equal(t, uint32(2), le.Uint32(b[20:]))
	assert.Equal(t, uint32(100), le.Uint32(b[24:]))
	assert.Equal(t, float32(-100500), math.Float32frombits(le.Uint32(b[28:])))
	assert.Equal(t, float32(1.25), math.Float32frombits(le.Uint32(b[32:])))
	assert.Equal(t, float32(-100500), math.Float32frombits(le.Uint32(b[36:])), "missing cell encoded as sentinel")
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	values := []float64{0, 0.1, -2.75, 123456.789, 1e-7}
	cells := make([]domain.Cell, 0, len(values)+1)
	for _, v := range values {
		cells = append(cells, domain.Valid(v))
	}
	cells = append(cells, domain.Missing())

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testHeader, cells))

	h, got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, testHeader, h)
	require.Len(t, got, len(cells))
	for i, v := range values {
		assert.Equal(t, float32(v), got[i], "value %d", i)
	}
	assert.Equal(t, testHeader.Sentinel, got[len(got)-1])
}

func TestDecode_Truncated(t *testing.T) {
	_, _, err := Decode(bytes.NewReader(make([]byte, HeaderSize-1)))
	require.Error(t, err)

	_, _, err = Decode(bytes.NewReader(make([]byte, HeaderSize+3)))
	require.Error(t, err)
}

func TestDimensions(t *testing.T) {
	lat, lon, ok := Dimensions(testHeader)
	require.True(t, ok)
	assert.Equal(t, 373, lat)
	assert.Equal(t, 1229, lon)

	_, _, ok = Dimensions(domain.Header{})
	assert.False(t, ok)
}

func TestWriter_CreatesTreeAndOverwrites(t *testing.T) {
	root := filepath.Join(t.TempDir(), "icon_d2")
	w := NewWriter(root, discardLogger())

	frame := domain.DeltaFrame{
		GridFrame: domain.GridFrame{
			Name:     "26.04.2024_19:00_1714158000",
			Header:   testHeader,
			LatCount: 1,
			LonCount: 2,
			Cells:    []domain.Cell{domain.Valid(1), domain.Valid(2)},
		},
	}

	path, err := w.Write(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "26.04.2024_19:00_1714158000", FileName), path)

	frame.Cells = []domain.Cell{domain.Valid(9)}
	_, err = w.Write(context.Background(), frame)
	require.NoError(t, err)

	_, values, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, values)
}

func TestWriter_Failure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	w := NewWriter(blocker, discardLogger())
	_, err := w.Write(context.Background(), domain.DeltaFrame{GridFrame: domain.GridFrame{Name: "n", Header: testHeader}})
	require.ErrorIs(t, err, domain.ErrWrite)
	assert.False(t, domain.Recoverable(err))
}
