package control

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openbts-tools/gsmws/pkg/decoder"
	"github.com/openbts-tools/gsmws/pkg/gsm"
	"github.com/openbts-tools/gsmws/pkg/store"
)

// StaleIgnoreAfter mirrors decoder.StaleIgnoreAfter; a Controller clears a
// unit's ignore_reports flag once it has been set for this long.
const StaleIgnoreAfter = decoder.StaleIgnoreAfter

// NeighborsPerCycle is how many untracked ARFCNs a retune assigns as the
// unit's new scan targets.
const NeighborsPerCycle = 5

// Controller runs one BTS unit through a periodic retune-and-publish cycle.
type Controller struct {
	unit          *BTSUnit
	store         *store.Store
	sleepTime     time.Duration
	neighborCycle time.Duration
	logger        logrus.FieldLogger
	rng           *rand.Rand
}

// NewController creates a Single-BTS Controller for unit, persisting
// availability snapshots to st.
func NewController(unit *BTSUnit, st *store.Store, sleepTime, neighborCycle time.Duration, logger logrus.FieldLogger) *Controller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Controller{
		unit:          unit,
		store:         st,
		sleepTime:     sleepTime,
		neighborCycle: neighborCycle,
		logger:        logger.WithField("unit", unit.Name),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes the cycle every sleepTime until ctx is canceled, returning
// nil once the interrupt is observed.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sleepTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Cycle(time.Now()); err != nil {
				c.logger.WithError(err).Error("controller cycle failed")
			}
		}
	}
}

// Cycle runs one clear-stale/retune/publish iteration against now, so
// tests can drive it without a real ticker.
func (c *Controller) Cycle(now time.Time) error {
	c.clearStaleIgnore(now)

	if now.Sub(c.unit.LastCycle()) > c.neighborCycle {
		c.retune(now)
	}

	snapshot := c.unit.Decoder.RSSI()
	if err := c.store.UpsertAvailability(snapshot, now, c.neighborCycle); err != nil {
		return fmt.Errorf("control: upsert_availability: %w", err)
	}
	return nil
}

func (c *Controller) clearStaleIgnore(now time.Time) {
	ignoring, since := c.unit.Decoder.IgnoreReportsSince()
	if ignoring && now.Sub(since) > StaleIgnoreAfter {
		c.unit.Decoder.SetIgnoreReports(false, now)
	}
}

func (c *Controller) retune(now time.Time) {
	safe, err := c.store.SafeARFCNs()
	if err != nil {
		c.logger.WithError(err).Error("retune: safe_arfcns failed")
		safe = nil
	}

	// The unit's own current ARFCN is intentionally not excluded from safe;
	// it may be picked again.
	if len(safe) == 0 {
		c.logger.Warn("retune: no safe ARFCN available, skipping channel change this cycle")
	} else {
		chosen := safe[c.rng.Intn(len(safe))]
		if err := c.unit.Driver.ChangeARFCN(chosen, false); err != nil {
			c.logger.WithError(err).Error("retune: change_arfcn rejected")
		}
	}

	tracked, err := c.store.TrackedARFCNs()
	if err != nil {
		c.logger.WithError(err).Error("retune: tracked_arfcns failed")
		tracked = nil
	}
	untracked := pickUntracked(c.rng, tracked, NeighborsPerCycle)
	if err := c.unit.Driver.SetNeighbors(untracked, nil); err != nil {
		c.logger.WithError(err).Error("retune: set_neighbors rejected")
	}

	c.unit.Decoder.SetIgnoreReports(true, now)
	c.unit.SetLastCycle(now)
}

// pickUntracked returns n ARFCNs chosen uniformly at random from
// 1..MaxARFCN-1 (1..123), excluding any in tracked.
func pickUntracked(rng *rand.Rand, tracked []gsm.ARFCN, n int) []gsm.ARFCN {
	excluded := make(map[gsm.ARFCN]bool, len(tracked))
	for _, a := range tracked {
		excluded[a] = true
	}

	var candidates []gsm.ARFCN
	for a := gsm.ARFCN(1); a < gsm.MaxARFCN; a++ {
		if !excluded[a] {
			candidates = append(candidates, a)
		}
	}
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}
