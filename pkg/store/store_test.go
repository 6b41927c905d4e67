package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbts-tools/gsmws/pkg/gsm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gsmws.db")
	st, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSafeARFCNs(t *testing.T) {
	st := openTestStore(t)
	now := time.Unix(1700000000, 0)

	err := st.UpsertAvailability(map[gsm.ARFCN]float64{
		10: -5.0,
		20: 3.5,
		30: -0.1,
	}, now, time.Hour)
	require.NoError(t, err)

	safe, err := st.SafeARFCNs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []gsm.ARFCN{10, 30}, safe)
}

func TestTrackedARFCNs(t *testing.T) {
	st := openTestStore(t)
	now := time.Unix(1700000000, 0)

	require.NoError(t, st.UpsertAvailability(map[gsm.ARFCN]float64{10: -5.0, 20: 3.5}, now, time.Hour))

	tracked, err := st.TrackedARFCNs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []gsm.ARFCN{10, 20}, tracked)
}

// A row last updated 250s ago with a 60s neighbor cycle (4*60=240s expiry
// window) is deleted on the next upsert.
func TestUpsertAvailability_ExpiresStaleRows(t *testing.T) {
	st := openTestStore(t)
	neighborCycle := 60 * time.Second
	t0 := time.Unix(1700000000, 0)

	require.NoError(t, st.UpsertAvailability(map[gsm.ARFCN]float64{5: -1.0}, t0, neighborCycle))

	t1 := t0.Add(250 * time.Second)
	require.NoError(t, st.UpsertAvailability(map[gsm.ARFCN]float64{6: -1.0}, t1, neighborCycle))

	tracked, err := st.TrackedARFCNs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []gsm.ARFCN{6}, tracked)
}

func TestUpsertAvailability_RejectsOutOfRangeARFCN(t *testing.T) {
	st := openTestStore(t)
	err := st.UpsertAvailability(map[gsm.ARFCN]float64{200: -1.0}, time.Unix(0, 0), time.Hour)
	assert.Error(t, err)
}

// Upserting the same ARFCN twice updates rather than duplicates.
func TestUpsertAvailability_UpdatesExistingRow(t *testing.T) {
	st := openTestStore(t)
	now := time.Unix(1700000000, 0)

	require.NoError(t, st.UpsertAvailability(map[gsm.ARFCN]float64{7: -1.0}, now, time.Hour))
	require.NoError(t, st.UpsertAvailability(map[gsm.ARFCN]float64{7: 4.0}, now.Add(time.Second), time.Hour))

	safe, err := st.SafeARFCNs()
	require.NoError(t, err)
	assert.Empty(t, safe)

	tracked, err := st.TrackedARFCNs()
	require.NoError(t, err)
	assert.Equal(t, []gsm.ARFCN{7}, tracked)
}

// WarmLoad reconstructs max strengths and a recent-window seed whose
// mean matches the stored mean.
func TestWarmLoad(t *testing.T) {
	st := openTestStore(t)
	now := time.Unix(1700000000, 0)

	require.NoError(t, st.UpsertMaxStrengths(map[gsm.ARFCN]gsm.RSSI{12: 22, 40: 5}, now))
	require.NoError(t, st.UpsertRecentStrength(12, 18.5, 37, now))

	maxStrengths, recentSeed, err := st.WarmLoad()
	require.NoError(t, err)

	assert.Equal(t, gsm.RSSI(22), maxStrengths[12])
	assert.Equal(t, gsm.RSSI(5), maxStrengths[40])

	seed := recentSeed[12]
	assert.Equal(t, 18.5, seed.Mean)
	assert.Equal(t, 37, seed.Count)
}

func TestUpsertMaxStrengths_OnlyRaisesNeverLowers(t *testing.T) {
	st := openTestStore(t)
	now := time.Unix(1700000000, 0)

	require.NoError(t, st.UpsertMaxStrengths(map[gsm.ARFCN]gsm.RSSI{9: 30}, now))
	require.NoError(t, st.UpsertMaxStrengths(map[gsm.ARFCN]gsm.RSSI{9: 10}, now.Add(time.Second)))

	maxStrengths, _, err := st.WarmLoad()
	require.NoError(t, err)
	assert.Equal(t, gsm.RSSI(30), maxStrengths[9])
}

func TestUpsertMaxStrengths_DropsARFCNsOutsideCurrentSet(t *testing.T) {
	st := openTestStore(t)
	now := time.Unix(1700000000, 0)

	require.NoError(t, st.UpsertMaxStrengths(map[gsm.ARFCN]gsm.RSSI{9: 30, 11: 5}, now))
	require.NoError(t, st.UpsertMaxStrengths(map[gsm.ARFCN]gsm.RSSI{9: 31}, now.Add(time.Second)))

	maxStrengths, _, err := st.WarmLoad()
	require.NoError(t, err)
	_, stillThere := maxStrengths[11]
	assert.False(t, stillThere)
	assert.Equal(t, gsm.RSSI(31), maxStrengths[9])
}

func TestDeleteRecentStrength(t *testing.T) {
	st := openTestStore(t)
	now := time.Unix(1700000000, 0)

	require.NoError(t, st.UpsertRecentStrength(3, 12.0, 5, now))
	require.NoError(t, st.DeleteRecentStrength(3))

	_, recentSeed, err := st.WarmLoad()
	require.NoError(t, err)
	_, ok := recentSeed[3]
	assert.False(t, ok)
}
