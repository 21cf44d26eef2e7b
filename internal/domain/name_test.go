package domain_test

import (
	"testing"
	"time"

	"github.com/couchcryptid/grid-delta-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRemote = "icon-d2_germany_regular-lat-lon_single-level_2024042612_007_2d_tot_prec.grib2.bz2"

func TestCanonicalize(t *testing.T) {
	name, err := domain.Canonicalize(sampleRemote)
	require.NoError(t, err)
	assert.Equal(t, domain.CanonicalName("26.04.2024_19:00_1714158000"), name)
}

func TestCanonicalize_Deterministic(t *testing.T) {
	first, err := domain.Canonicalize(sampleRemote)
	require.NoError(t, err)
	for n := 0; n < 5; n++ {
		again, err := domain.Canonicalize(sampleRemote)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCanonicalize_OffsetCrossesDay(t *testing.T) {
	name, err := domain.Canonicalize("icon-d2_germany_regular-lat-lon_single-level_2024042612_024_2d_tot_prec.grib2.bz2")
	require.NoError(t, err)
	assert.Equal(t, domain.CanonicalName("27.04.2024_12:00_1714219200"), name)
}

func TestCanonicalize_NoTimestamp(t *testing.T) {
	_, err := domain.Canonicalize("index.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.html")
}

func TestValidTime(t *testing.T) {
	vt, err := domain.ValidTime(sampleRemote)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.April, 26, 19, 0, 0, 0, time.UTC), vt)
}

func TestNameFor_ConvertsToUTC(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)
	local := time.Date(2024, time.April, 26, 21, 0, 0, 0, berlin)
	assert.Equal(t, domain.CanonicalName("26.04.2024_19:00_1714158000"), domain.NameFor(local))
}

func TestOrderBatch(t *testing.T) {
	t0 := time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)
	entries := []domain.BatchEntry{
		{Remote: "c", ValidTime: t0.Add(2 * time.Hour)},
		{Remote: "a", ValidTime: t0},
		{Remote: "b1", ValidTime: t0.Add(time.Hour)},
		{Remote: "b2", ValidTime: t0.Add(time.Hour)},
	}

	discovery := domain.OrderBatch(entries, domain.OrderDiscovery)
	assert.Equal(t, []string{"c", "a", "b1", "b2"}, remotes(discovery))

	byTime := domain.OrderBatch(entries, domain.OrderValidTime)
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, remotes(byTime))

	// input untouched
	assert.Equal(t, "c", entries[0].Remote)
}

func remotes(entries []domain.BatchEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Remote
	}
	return out
}
