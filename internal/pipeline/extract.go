package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/grid-delta-etl/internal/domain"
	"github.com/couchcryptid/grid-delta-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Decoder reads one grid from a local file.
type Decoder interface {
	Decode(path string) (domain.RawGrid, error)
}

// Extractor turns a downloaded file into a quantized GridFrame.
type Extractor struct {
	decoder    Decoder
	multiplier int32
	sentinel   float32
	metrics    *observability.Metrics
	clock      clockwork.Clock
}

// ExtractorOption customizes an Extractor.
type ExtractorOption func(*Extractor)

// WithExtractorClock replaces the clock used to time decodes.
func WithExtractorClock(c clockwork.Clock) ExtractorOption {
	return func(e *Extractor) { e.clock = c }
}

// NewExtractor creates an Extractor using the given fixed-point settings.
func NewExtractor(d Decoder, multiplier int32, sentinel float32, metrics *observability.Metrics, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		decoder:    d,
		multiplier: multiplier,
		sentinel:   sentinel,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract decodes entry.LocalPath and builds its frame. Every failure wraps
// domain.ErrExtract.
func (e *Extractor) Extract(ctx context.Context, entry domain.BatchEntry) (domain.GridFrame, error) {
	if err := ctx.Err(); err != nil {
		return domain.GridFrame{}, err
	}
	start := e.clock.Now()
	defer func() { e.metrics.ExtractDuration.Observe(e.clock.Since(start).Seconds()) }()

	raw, err := e.decoder.Decode(entry.LocalPath)
	if err != nil {
		return domain.GridFrame{}, fmt.Errorf("%w: %s: %w", domain.ErrExtract, entry.LocalPath, err)
	}
	return domain.BuildFrame(entry.Name, raw, e.multiplier, e.sentinel)
}
