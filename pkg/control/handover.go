package control

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openbts-tools/gsmws/pkg/gsm"
	"github.com/openbts-tools/gsmws/pkg/store"
)

// DefaultCycleTime is the per-unit attenuation schedule period.
const DefaultCycleTime = 90 * time.Second

// ChannelChangeStep is the frequency-agility offset applied when
// interference forces an immediate channel change: a deliberate step
// that stays on the same visible spectrum rather than jumping far away.
const ChannelChangeStep = 10

// attenDB maps attenuation state {0,1,2,3} to the txatten value applied
// at that state.
var attenDB = [4]int{1, 20, 40, 80}

// HandoverController runs two BTS Drivers plus two Decoder Workers
// through a time-phased attenuation schedule with interference
// detection.
type HandoverController struct {
	units         [2]*BTSUnit
	store         *store.Store
	sleepTime     time.Duration
	neighborCycle time.Duration
	cycleTime     time.Duration
	logger        logrus.FieldLogger
}

// NewHandoverController creates a controller for the two given units.
// unit1's schedule is phased cycleTime after unit0's by staggering its
// StartTime.
func NewHandoverController(unit0, unit1 *BTSUnit, st *store.Store, sleepTime, neighborCycle, cycleTime time.Duration, logger logrus.FieldLogger) *HandoverController {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cycleTime <= 0 {
		cycleTime = DefaultCycleTime
	}
	unit1.startTime = unit0.StartTime().Add(cycleTime)
	return &HandoverController{
		units:         [2]*BTSUnit{unit0, unit1},
		store:         st,
		sleepTime:     sleepTime,
		neighborCycle: neighborCycle,
		cycleTime:     cycleTime,
		logger:        logger,
	}
}

// Run executes the cycle every sleepTime until ctx is canceled.
func (c *HandoverController) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sleepTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Cycle(time.Now()); err != nil {
				c.logger.WithError(err).Error("handover controller cycle failed")
			}
		}
	}
}

// Cycle runs one iteration of the per-unit attenuation/retune cycle plus
// interference detection, against now.
func (c *HandoverController) Cycle(now time.Time) error {
	for _, unit := range c.units {
		c.applyAttenuationState(unit, now)
		c.clearStaleIgnoreFor(unit, now)
		c.maybeRetune(unit, now)
		c.reassertNeighborTable(unit)
	}

	if err := c.detectInterference(now); err != nil {
		return fmt.Errorf("control: interference detection: %w", err)
	}
	return nil
}

func (c *HandoverController) applyAttenuationState(unit *BTSUnit, now time.Time) {
	state := AttenuationState(now, unit.StartTime(), c.cycleTime)
	if err := unit.Driver.SetTxAtten(attenDB[state]); err != nil {
		c.logger.WithError(err).WithField("unit", unit.Name).Error("set_txatten failed")
	}
}

func (c *HandoverController) clearStaleIgnoreFor(unit *BTSUnit, now time.Time) {
	ignoring, since := unit.Decoder.IgnoreReportsSince()
	if ignoring && now.Sub(since) > StaleIgnoreAfter {
		unit.Decoder.SetIgnoreReports(false, now)
	}
}

// maybeRetune sets the unit's neighbor list to the other unit's current
// serving ARFCN so the two units can cross-observe each other. No other
// ARFCNs are added; if the peer's ARFCN cannot be read, the list is empty.
func (c *HandoverController) maybeRetune(unit *BTSUnit, now time.Time) {
	if now.Sub(unit.LastCycle()) <= c.neighborCycle {
		return
	}
	other := c.otherUnit(unit)

	var realIPs []string
	neighbors := []gsm.ARFCN{}
	if otherARFCN, err := other.Driver.CurrentARFCN(); err == nil {
		neighbors = append(neighbors, otherARFCN)
	} else {
		c.logger.WithError(err).WithField("unit", unit.Name).Warn("retune: could not read peer's current ARFCN")
	}

	if err := unit.Driver.SetNeighbors(neighbors, realIPs); err != nil {
		c.logger.WithError(err).WithField("unit", unit.Name).Error("retune: set_neighbors rejected")
	}
	unit.Decoder.SetIgnoreReports(true, now)
	unit.SetLastCycle(now)
}

// reassertNeighborTable re-sends the unit's last-known neighbors every
// tick, since the underlying stack forgets rows it cannot re-peer with.
func (c *HandoverController) reassertNeighborTable(unit *BTSUnit) {
	neighbors := unit.Decoder.CurrentNeighbors()
	if len(neighbors) == 0 {
		return
	}
	if err := unit.Driver.SetNeighbors(neighbors, nil); err != nil {
		c.logger.WithError(err).WithField("unit", unit.Name).Warn("reassert neighbor table: will retry next tick")
	}
}

func (c *HandoverController) otherUnit(unit *BTSUnit) *BTSUnit {
	if unit == c.units[0] {
		return c.units[1]
	}
	return c.units[0]
}

// detectInterference scans both units' drained reports: any unit that is
// off the air whose own serving channel is heard loudly (RSSI > 10) in any
// unit's reports, its own included, gets an immediate, deliberately-offset
// channel change.
func (c *HandoverController) detectInterference(now time.Time) error {
	arfcnToUnit := make(map[gsm.ARFCN]*BTSUnit, len(c.units))
	for _, unit := range c.units {
		if arfcn, err := unit.Driver.CurrentARFCN(); err == nil {
			arfcnToUnit[arfcn] = unit
		}
	}

	for _, reporter := range c.units {
		for _, report := range reporter.Decoder.Reports() {
			for target, rssi := range report.Strengths {
				victim, tracked := arfcnToUnit[target]
				if !tracked || rssi <= 10 || !victim.Driver.IsOff() {
					continue
				}
				current, err := victim.Driver.CurrentARFCN()
				if err != nil {
					c.logger.WithError(err).WithField("unit", victim.Name).Error("interference: could not read current ARFCN")
					continue
				}
				next := pickNewChannel(current)
				c.logger.WithFields(logrus.Fields{
					"unit": victim.Name, "from": current, "to": next, "rssi": rssi,
				}).Warn("interference detected, forcing immediate channel change")
				if err := victim.Driver.ChangeARFCN(next, true); err != nil {
					return fmt.Errorf("change_arfcn(%d, immediate) on %s: %w", next, victim.Name, err)
				}
			}
		}
	}
	return nil
}

// pickNewChannel applies the frequency-agility step, wrapping back into
// the valid ARFCN range and never returning the same channel.
func pickNewChannel(current gsm.ARFCN) gsm.ARFCN {
	next := current + ChannelChangeStep
	if next > gsm.MaxARFCN {
		next = (next % gsm.MaxARFCN)
		if next == 0 {
			next = gsm.MaxARFCN
		}
		if next == current {
			next++
		}
	}
	return next
}

// floorDiv and floorMod give Euclidean floor semantics for negative
// operands, which plain Go / and % (truncating) do not.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}

// AttenuationState computes the attenuation state {0,1,2,3} for a unit at
// time now, given its schedule's startTime and cycleTime:
//
//	t     = floor((now - startTime) / 10s) * 10s
//	phase = (t mod 2*cycleTime) - (cycleTime - 10s)
//	state = clamp(floor(phase / 10s), 0, 3)
//
// Using Euclidean (always-non-negative) mod makes this well-defined for
// now before startTime too, which matters before a unit's staggered
// schedule has "started": its phase is simply wherever the periodic
// schedule already is.
func AttenuationState(now, startTime time.Time, cycleTime time.Duration) int {
	elapsedSec := int64(now.Sub(startTime) / time.Second)
	tSec := floorDiv(elapsedSec, 10) * 10

	cycleSec := int64(cycleTime / time.Second)
	period := 2 * cycleSec

	modded := floorMod(tSec, period)
	phase := modded - (cycleSec - 10)

	state := floorDiv(phase, 10)
	if state < 0 {
		state = 0
	}
	if state > 3 {
		state = 3
	}
	return int(state)
}
