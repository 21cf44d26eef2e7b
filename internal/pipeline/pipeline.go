package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/grid-delta-etl/internal/domain"
	"github.com/couchcryptid/grid-delta-etl/internal/observability"
	"github.com/couchcryptid/grid-delta-etl/internal/workpool"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Source lists and downloads remote grid files.
type Source interface {
	Discover(ctx context.Context) (domain.Listing, error)
	Fetch(ctx context.Context, baseURL, remote, dest string) error
}

// FrameWriter persists one delta frame and returns where it was written.
type FrameWriter interface {
	Write(ctx context.Context, frame domain.DeltaFrame) (string, error)
}

// Publisher announces written frames. It is optional.
type Publisher interface {
	Publish(ctx context.Context, event domain.FrameWritten) error
}

// Options are the per-run knobs taken from configuration.
type Options struct {
	DownloadDir  string
	FetchTimeout time.Duration
	Order        domain.OrderPolicy
	DiffPolicy   domain.DiffPolicy
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPublisher enables frame notifications.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithClock replaces the wall clock used for run timing.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// Pipeline runs discover, fetch, extract, diff and write over one listing.
type Pipeline struct {
	source    Source
	extractor *Extractor
	writer    FrameWriter
	publisher Publisher
	pool      *workpool.Pool
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	last      atomic.Pointer[Report]

	// runs are serialized; the scheduler never overlaps them but Run is exported.
	mu sync.Mutex
}

// New creates a Pipeline with the given stages and observability.
func New(src Source, ext *Extractor, w FrameWriter, pool *workpool.Pool, opts Options, logger *slog.Logger, metrics *observability.Metrics, options ...Option) *Pipeline {
	p := &Pipeline{
		source:    src,
		extractor: ext,
		writer:    w,
		pool:      pool,
		opts:      opts,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Skip records a file that was left out of the output and why.
type Skip struct {
	File string
	Err  error
}

// Report summarizes one run.
type Report struct {
	RunID      string
	Started    time.Time
	Duration   time.Duration
	Discovered int
	Fetched    int
	Extracted  int
	Written    int
	Skipped    []Skip
	// Paths lists written outputs in processing order.
	Paths []string
}

// CheckReadiness returns nil once a run has completed without a fatal error.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LastReport returns the report of the most recent finished run.
func (p *Pipeline) LastReport() (Report, bool) {
	r := p.last.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

// Run executes one complete run. Listing and write failures are returned;
// per-file fetch and extract failures are recorded in the report and skipped.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := Report{RunID: uuid.NewString(), Started: p.clock.Now()}
	logger := p.logger.With("run_id", report.RunID)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	logger.Info("run started")
	err := p.run(ctx, logger, &report)
	report.Duration = p.clock.Since(report.Started)
	p.metrics.RunDuration.Observe(report.Duration.Seconds())
	p.last.Store(&report)

	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("failed").Inc()
		logger.Error("run failed", "error", err, "duration", report.Duration)
		return report, err
	}

	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
	p.ready.Store(true)
	logger.Info("run finished",
		"discovered", report.Discovered,
		"fetched", report.Fetched,
		"extracted", report.Extracted,
		"written", report.Written,
		"skipped", len(report.Skipped),
		"duration", report.Duration,
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, report *Report) error {
	listing, err := p.source.Discover(ctx)
	if err != nil {
		return err
	}
	report.Discovered = len(listing.Files)
	p.metrics.FilesDiscovered.Add(float64(len(listing.Files)))
	logger.Info("listing fetched", "base_url", listing.BaseURL, "files", len(listing.Files))

	batch := p.acquire(ctx, logger, listing, report)
	report.Fetched = len(batch)
	if err := ctx.Err(); err != nil {
		return err
	}

	batch = domain.OrderBatch(batch, p.opts.Order)
	results := workpool.Map(ctx, p.pool, batch, p.extractor.Extract)
	if err := ctx.Err(); err != nil {
		return err
	}

	diff := domain.NewDifferencer(p.opts.DiffPolicy)
	for i := range results {
		entry := batch[i]
		if err := results[i].Err; err != nil {
			p.skip(logger, report, entry.Remote, err, "extract failed, skipping file")
			p.metrics.ExtractErrors.Inc()
			continue
		}
		report.Extracted++

		prevName, _ := diff.Previous()
		frame, err := diff.Next(results[i].Value)
		// The extracted frame is now owned by the differencer.
		results[i].Value = domain.GridFrame{}
		if err != nil {
			p.skip(logger, report, entry.Remote, err, "frame rejected, skipping file")
			p.metrics.ExtractErrors.Inc()
			continue
		}

		path, err := p.writer.Write(ctx, frame)
		if err != nil {
			return err
		}
		report.Written++
		report.Paths = append(report.Paths, path)
		p.metrics.FramesWritten.WithLabelValues(frame.Kind.String()).Inc()
		logger.Debug("frame written", "name", frame.Name, "kind", frame.Kind.String(), "path", path)

		event := domain.FrameWritten{
			RunID:     report.RunID,
			Name:      frame.Name,
			Kind:      frame.Kind.String(),
			ValidTime: entry.ValidTime,
			Source:    entry.Remote,
			Path:      path,
			Header:    frame.Header,
		}
		if frame.Kind == domain.KindDelta {
			event.Previous = prevName
		}
		p.publish(ctx, logger, event)
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, event domain.FrameWritten) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.metrics.PublishErrors.Inc()
		logger.Warn("publish frame notification failed", "name", event.Name, "error", err)
	}
}

func (p *Pipeline) skip(logger *slog.Logger, report *Report, file string, err error, msg string) {
	report.Skipped = append(report.Skipped, Skip{File: file, Err: err})
	logger.Warn(msg, "file", file, "error", err)
}
