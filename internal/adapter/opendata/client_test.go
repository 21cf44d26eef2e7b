package opendata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/grid-delta-etl/internal/domain"
	"github.com/couchcryptid/grid-delta-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "icon-d2_germany_regular-lat-lon_single"

const indexHTML = `<html><head><title>Index of /tot_prec/</title></head><body>
<h1>Index of /tot_prec/</h1><hr><pre><a href="../">../</a>
<a href="icon-d2_germany_regular-lat-lon_single-level_2024042612_000_2d_tot_prec.grib2.bz2">icon-d2_..._000</a> 26-Apr-2024 14:10  12345
<a href="icon-d2_germany_icosahedral_single-level_2024042612_000_2d_tot_prec.grib2.bz2">icosahedral</a>
<a href="icon-d2_germany_regular-lat-lon_single-level_2024042612_001_2d_tot_prec.grib2.bz2">icon-d2_..._001</a>
<a href="icon-d2_germany_regular-lat-lon_single-level_2024042612_000_2d_tot_prec.grib2.bz2">duplicate</a>
<a href="icon-d2_germany_regular-lat-lon_single">bare prefix</a>
</pre><hr></body></html>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(indexURL string) *Client {
	logger := discardLogger()
	return &Client{
		indexURL:       indexURL,
		prefix:         testPrefix,
		listingTimeout: 5 * time.Second,
		httpClient:     &http.Client{},
		breaker:        newBreaker("test", logger),
		backoff:        BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 4 * time.Millisecond},
		metrics:        observability.NewMetricsForTesting(),
		logger:         logger,
		clock:          clockwork.NewRealClock(),
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestScanLinks(t *testing.T) {
	files, err := scanLinks(strings.NewReader(indexHTML), testPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"icon-d2_germany_regular-lat-lon_single-level_2024042612_000_2d_tot_prec.grib2.bz2",
		"icon-d2_germany_regular-lat-lon_single-level_2024042612_001_2d_tot_prec.grib2.bz2",
	}, files)
}

func TestScanLinks_Empty(t *testing.T) {
	files, err := scanLinks(strings.NewReader("<html><body>nothing here</body></html>"), testPrefix)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscover_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/latest/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/runs/12/tot_prec/", http.StatusFound)
	})
	mux.HandleFunc("/runs/12/tot_prec/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(indexHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	listing, err := testClient(srv.URL + "/latest/").Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/runs/12/tot_prec/", listing.BaseURL)
	assert.Len(t, listing.Files, 2)
}

func TestDiscover_TimesRequestsWithClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		clock.Advance(3 * time.Second)
		_, _ = w.Write([]byte(indexHTML))
	}))
	defer srv.Close()

	c := testClient(srv.URL + "/")
	c.clock = clock
	_, err := c.Discover(context.Background())
	require.NoError(t, err)

	var m dto.Metric
	obs := c.metrics.HTTPRequestDuration.WithLabelValues("listing")
	require.NoError(t, obs.(prometheus.Metric).Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
	assert.InDelta(t, 3.0, m.GetHistogram().GetSampleSum(), 1e-9)
}

func TestDiscover_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(indexHTML))
	}))
	defer srv.Close()

	c := testClient(srv.URL + "/")
	listing, err := c.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, listing.Files, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDiscover_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := testClient(url + "/").Discover(context.Background())
	require.ErrorIs(t, err, domain.ErrListing)
	assert.False(t, domain.Recoverable(err))
}

func TestDiscover_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL + "/").Discover(context.Background())
	require.ErrorIs(t, err, domain.ErrListing)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDiscover_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(srv.URL + "/")
	for n := 0; n < 3; n++ {
		_, err := c.Discover(context.Background())
		require.Error(t, err)
	}
	_, err := c.Discover(context.Background())
	require.ErrorIs(t, err, domain.ErrListing)
	assert.Equal(t, int32(3), calls.Load(), "open breaker short-circuits the request")
}

func TestFetch_DecompressesBzip2(t *testing.T) {
	payload := readFixture(t, "payload.bin.bz2")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tot_prec/a.grib2.bz2", r.URL.Path)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "download", "name.grib2")
	err := testClient(srv.URL).Fetch(context.Background(), srv.URL+"/tot_prec/", "a.grib2.bz2", dest)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("GRIB fake payload for tests\n", 4), string(got))
}

func TestFetch_OtherCodecs(t *testing.T) {
	const content = "grid bytes"

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zst := enc.EncodeAll([]byte(content), nil)
	require.NoError(t, enc.Close())

	bodies := map[string][]byte{
		"/f.grib2.gz":  gz.Bytes(),
		"/f.grib2.zst": zst,
		"/f.grib2":     []byte(content),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bodies[r.URL.Path])
	}))
	defer srv.Close()

	for path := range bodies {
		t.Run(path, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "out.grib2")
			require.NoError(t, testClient(srv.URL).Fetch(context.Background(), srv.URL+"/", strings.TrimPrefix(path, "/"), dest))
			got, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, content, string(got))
		})
	}
}

func TestFetch_CorruptArchive(t *testing.T) {
	corrupt := readFixture(t, "corrupt.bin.bz2")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(corrupt)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "x.grib2")
	err := testClient(srv.URL).Fetch(context.Background(), srv.URL+"/", "x.grib2.bz2", dest)
	require.ErrorIs(t, err, domain.ErrFetch)
	assert.True(t, domain.Recoverable(err))

	_, statErr := os.Stat(dest)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no partial file left at destination")

	leftovers, err := filepath.Glob(filepath.Join(dir, ".part-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := testClient(srv.URL).Fetch(ctx, srv.URL+"/", "slow.grib2.bz2", filepath.Join(t.TempDir(), "slow.grib2"))
	require.ErrorIs(t, err, domain.ErrFetch)
}

func TestResolve(t *testing.T) {
	cases := []struct{ base, file, want string }{
		{"https://h/a/b/", "f.bz2", "https://h/a/b/f.bz2"},
		{"https://h/a/b/?C=M", "f.bz2", "https://h/a/b/f.bz2"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s+%s", tc.base, tc.file), func(t *testing.T) {
			got, err := resolve(tc.base, tc.file)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
