package wgf4

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/grid-delta-etl/internal/domain"
)

// FileName is the name of the data file inside each frame directory.
const FileName = "PDATA.wgf4"

// Writer persists frames under <root>/<canonical name>/PDATA.wgf4.
// It implements pipeline.FrameWriter.
type Writer struct {
	root   string
	logger *slog.Logger
}

// NewWriter creates a Writer rooted at dir. The directory is created on demand.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{root: dir, logger: logger}
}

// Path returns the output file path for a frame name.
func (w *Writer) Path(name domain.CanonicalName) string {
	return filepath.Join(w.root, string(name), FileName)
}

// Write encodes the frame and replaces any existing file. Failures wrap
// domain.ErrWrite.
func (w *Writer) Write(ctx context.Context, frame domain.DeltaFrame) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrWrite, frame.Name, err)
	}

	path := w.Path(frame.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: create directory for %s: %w", domain.ErrWrite, frame.Name, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %w", domain.ErrWrite, path, err)
	}
	if err := Encode(f, frame.Header, frame.Cells); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: %s: %w", domain.ErrWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %w", domain.ErrWrite, path, err)
	}

	w.logger.Debug("frame written", "name", frame.Name, "kind", frame.Kind.String(), "path", path)
	return path, nil
}

// ReadFile decodes a WGF4 file from disk.
func ReadFile(path string) (domain.Header, []float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Header{}, nil, err
	}
	defer f.Close()
	return Decode(f)
}
