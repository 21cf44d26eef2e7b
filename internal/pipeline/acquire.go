package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/grid-delta-etl/internal/domain"
)

// acquire canonicalizes every listed file and downloads them concurrently,
// each under its own timeout. It returns the successfully fetched entries in
// listing order.
func (p *Pipeline) acquire(ctx context.Context, logger *slog.Logger, listing domain.Listing, report *Report) []domain.BatchEntry {
	entries := make([]domain.BatchEntry, 0, len(listing.Files))
	// Names map to local and output paths, so only the first file per name is kept.
	seen := make(map[domain.CanonicalName]string, len(listing.Files))
	for _, remote := range listing.Files {
		vt, err := domain.ValidTime(remote)
		if err != nil {
			p.skip(logger, report, remote, fmt.Errorf("%w: %w", domain.ErrFetch, err), "unrecognized file name, skipping file")
			p.metrics.FetchErrors.Inc()
			continue
		}
		name := domain.NameFor(vt)
		if first, dup := seen[name]; dup {
			p.skip(logger, report, remote, fmt.Errorf("%w: %s has the same valid time as %s", domain.ErrFetch, name, first), "duplicate valid time, skipping file")
			p.metrics.FetchErrors.Inc()
			continue
		}
		seen[name] = remote
		entries = append(entries, domain.BatchEntry{
			Remote:    remote,
			Name:      name,
			ValidTime: vt,
			LocalPath: filepath.Join(p.opts.DownloadDir, string(name)+".grib2"),
		})
	}

	errs := make([]error, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		i, e := i, e
		wg.Add(1)
		go func() {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
			defer cancel()
			errs[i] = p.source.Fetch(fctx, listing.BaseURL, e.Remote, e.LocalPath)
		}()
	}
	wg.Wait()

	fetched := entries[:0]
	for i, e := range entries {
		if errs[i] != nil {
			p.skip(logger, report, e.Remote, errs[i], "fetch failed, skipping file")
			p.metrics.FetchErrors.Inc()
			continue
		}
		logger.Debug("file fetched", "file", e.Remote, "name", e.Name, "path", e.LocalPath)
		fetched = append(fetched, e)
	}
	return fetched
}
