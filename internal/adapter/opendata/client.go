// Package opendata lists and downloads forecast files from an HTTP directory
// index such as the DWD open data server.
package opendata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/grid-delta-etl/internal/config"
	"github.com/couchcryptid/grid-delta-etl/internal/domain"
	"github.com/couchcryptid/grid-delta-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
)

// Client implements pipeline.Source against an HTTP directory listing.
type Client struct {
	indexURL       string
	prefix         string
	listingTimeout time.Duration
	httpClient     *http.Client
	breaker        *gobreaker.CircuitBreaker
	backoff        BackoffConfig
	metrics        *observability.Metrics
	logger         *slog.Logger
	clock          clockwork.Clock
}

// NewClient creates a client for the configured index. Timeouts are applied
// per request through the context, so the http.Client itself has none.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		indexURL:       cfg.IndexURL,
		prefix:         cfg.FilePrefix,
		listingTimeout: cfg.ListingTimeout,
		httpClient:     &http.Client{},
		breaker:        newBreaker("opendata-index", logger),
		backoff: BackoffConfig{
			MaxRetries:      cfg.FetchRetries,
			InitialInterval: cfg.RetryBackoff,
			MaxInterval:     8 * cfg.RetryBackoff,
		},
		metrics: metrics,
		logger:  logger,
		clock:   clockwork.NewRealClock(),
	}
}

// Discover fetches the index and returns the final URL after redirects
// together with every linked file that starts with the configured prefix.
// Failures wrap domain.ErrListing.
func (c *Client) Discover(ctx context.Context) (domain.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listingTimeout)
	defer cancel()

	var listing domain.Listing
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, withRetry(ctx, c.backoff, c.onRetry("listing"), func() error {
			l, err := c.discoverOnce(ctx)
			if err != nil {
				return err
			}
			listing = l
			return nil
		})
	})
	if err != nil {
		return domain.Listing{}, fmt.Errorf("%w: %s: %w", domain.ErrListing, c.indexURL, err)
	}

	c.logger.Info("index listed", "base_url", listing.BaseURL, "files", len(listing.Files))
	return listing, nil
}

func (c *Client) discoverOnce(ctx context.Context) (domain.Listing, error) {
	resp, err := c.get(ctx, c.indexURL, "listing")
	if err != nil {
		return domain.Listing{}, err
	}
	defer resp.Body.Close()

	files, err := scanLinks(resp.Body, c.prefix)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("scan index: %w", err)
	}
	return domain.Listing{BaseURL: resp.Request.URL.String(), Files: files}, nil
}

// Fetch downloads remote relative to baseURL, decompresses it according to
// its suffix and stores the result at dest. The file only appears at dest once
// fully written. Failures wrap domain.ErrFetch.
func (c *Client) Fetch(ctx context.Context, baseURL, remote, dest string) error {
	src, err := resolve(baseURL, remote)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrFetch, remote, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrFetch, remote, err)
	}

	err = withRetry(ctx, c.backoff, c.onRetry("fetch"), func() error {
		return c.fetchOnce(ctx, src, remote, dest)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrFetch, remote, err)
	}
	return nil
}

func (c *Client) fetchOnce(ctx context.Context, src, remote, dest string) error {
	resp, err := c.get(ctx, src, "fetch")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := decompressor(remote, resp.Body)
	if err != nil {
		return permanent(fmt.Errorf("open decompressor: %w", err))
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".part-*")
	if err != nil {
		return permanent(err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", remote, err)
	}
	if err := tmp.Close(); err != nil {
		return permanent(err)
	}
	return os.Rename(tmp.Name(), dest)
}

// get performs a GET and returns the response for any 2xx status.
func (c *Client) get(ctx context.Context, rawURL, op string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.HTTPRequestDuration.WithLabelValues(op).Observe(c.clock.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}
	return resp, nil
}

func (c *Client) onRetry(op string) func(attempt int, err error) {
	return func(attempt int, err error) {
		c.metrics.HTTPRetries.WithLabelValues(op).Inc()
		c.logger.Debug("retrying request", "op", op, "attempt", attempt, "error", err)
	}
}

func resolve(baseURL, remote string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(remote)
	if err != nil {
		return "", fmt.Errorf("parse file name: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// retryable reports whether a status is worth another attempt.
func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}
