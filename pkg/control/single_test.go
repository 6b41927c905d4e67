package control

import (
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openbts-tools/gsmws/pkg/gsm"
	"github.com/openbts-tools/gsmws/pkg/store"
)

func newTestRand() *rand.Rand { return rand.New(rand.NewSource(1)) }

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "gsmws.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestController_Cycle_RetunesWhenNeighborCycleElapsed(t *testing.T) {
	st := testStore(t)
	now := time.Unix(1700000000, 0)
	require.NoError(t, st.UpsertAvailability(map[gsm.ARFCN]float64{10: -5.0}, now, time.Hour))

	driver := &mockDriver{}
	driver.On("ChangeARFCN", mock.Anything, false).Return(nil)
	driver.On("SetNeighbors", mock.Anything, mock.Anything).Return(nil)

	w := mustEmptyWorker(t)
	unit := NewBTSUnit("unit0", driver, w, 0)

	c := NewController(unit, st, time.Second, time.Hour, nil)
	require.NoError(t, c.Cycle(now))

	driver.AssertCalled(t, "ChangeARFCN", gsm.ARFCN(10), false)
	driver.AssertCalled(t, "SetNeighbors", mock.Anything, mock.Anything)
}

func TestController_Cycle_SkipsRetuneBeforeNeighborCycleElapses(t *testing.T) {
	st := testStore(t)
	now := time.Unix(1700000000, 0)

	driver := &mockDriver{}
	w := mustEmptyWorker(t)
	unit := NewBTSUnit("unit0", driver, w, 0)
	unit.SetLastCycle(now)

	c := NewController(unit, st, time.Second, time.Hour, nil)
	require.NoError(t, c.Cycle(now.Add(time.Minute)))

	driver.AssertNotCalled(t, "ChangeARFCN", mock.Anything, mock.Anything)
}

func TestController_Retune_SkipsChangeARFCNWhenNoSafeARFCN(t *testing.T) {
	st := testStore(t)
	now := time.Unix(1700000000, 0)

	driver := &mockDriver{}
	driver.On("SetNeighbors", mock.Anything, mock.Anything).Return(nil)
	w := mustEmptyWorker(t)
	unit := NewBTSUnit("unit0", driver, w, 0)

	c := NewController(unit, st, time.Second, time.Hour, nil)
	require.NoError(t, c.Cycle(now))

	driver.AssertNotCalled(t, "ChangeARFCN", mock.Anything, mock.Anything)
	driver.AssertCalled(t, "SetNeighbors", mock.Anything, mock.Anything)
	assert.Equal(t, now, unit.LastCycle(), "last_cycle must still advance when safe_arfcns is empty")
	ignoring, _ := w.IgnoreReportsSince()
	assert.True(t, ignoring, "ignore_reports must still be set when safe_arfcns is empty")
}

func TestController_ClearStaleIgnoreReports(t *testing.T) {
	st := testStore(t)
	now := time.Unix(1700000000, 0)

	driver := &mockDriver{}
	w := mustEmptyWorker(t)
	unit := NewBTSUnit("unit0", driver, w, 0)
	unit.SetLastCycle(now)
	w.SetIgnoreReports(true, now.Add(-200*time.Second))

	c := NewController(unit, st, time.Second, time.Hour, nil)
	require.NoError(t, c.Cycle(now))

	ignoring, _ := w.IgnoreReportsSince()
	require.False(t, ignoring)
}

func TestPickUntracked_ExcludesTrackedAndRespectsCount(t *testing.T) {
	rng := newTestRand()
	tracked := []gsm.ARFCN{1, 2, 3}
	picked := pickUntracked(rng, tracked, 5)
	require.Len(t, picked, 5)
	for _, a := range picked {
		for _, tr := range tracked {
			require.NotEqual(t, tr, a)
		}
	}
}
