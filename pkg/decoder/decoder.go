package decoder

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openbts-tools/gsmws/pkg/gsm"
	"github.com/openbts-tools/gsmws/pkg/store"
)

// RecentWidth is the default width (W) of each ARFCN's recent-sample
// window.
const RecentWidth = 100

// MaxDrainedReports bounds the drain-once report list.
const MaxDrainedReports = 10000

// StaleIgnoreAfter is how long ignore_reports may stay set before it is
// considered stale; the Controller, not the Worker, performs the
// clearing, but the Worker exposes the timestamp it needs.
const StaleIgnoreAfter = 120 * time.Second

// writeBehindOp is one pending, non-critical store mutation.
type writeBehindOp func(*store.Store) error

// Worker is a Decoder Worker: one per physical BTS. Zero value is not
// usable; construct with New.
type Worker struct {
	parser *gsm.Parser
	store  *store.Store
	logger logrus.FieldLogger

	mu            sync.Mutex
	servingKnown  bool
	serving       gsm.ARFCN
	neighbors     gsm.NeighborList
	ignoreReports bool
	ignoreSince   time.Time
	maxStrength   map[gsm.ARFCN]gsm.RSSI
	recent        map[gsm.ARFCN][]float64

	reportsMu sync.Mutex
	reports   []gsm.MeasurementReport

	writeBehind chan writeBehindOp
}

// New creates a Worker backed by st for persistence. If st is non-nil,
// New immediately warm-loads max_strength and recent_strength from it.
func New(st *store.Store, logger logrus.FieldLogger) (*Worker, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	w := &Worker{
		parser:      gsm.NewParser(),
		store:       st,
		logger:      logger,
		maxStrength: make(map[gsm.ARFCN]gsm.RSSI),
		recent:      make(map[gsm.ARFCN][]float64),
		writeBehind: make(chan writeBehindOp, 256),
	}

	if st != nil {
		maxStrengths, recentSeed, err := st.WarmLoad()
		if err != nil {
			return nil, fmt.Errorf("decoder: warm load: %w", err)
		}
		for arfcn, rssi := range maxStrengths {
			w.maxStrength[arfcn] = rssi
		}
		for arfcn, seed := range recentSeed {
			samples := make([]float64, seed.Count)
			for i := range samples {
				samples[i] = seed.Mean
			}
			w.recent[arfcn] = samples
		}
	}

	return w, nil
}

// Run reads dissector records from r until it closes or ctx is canceled,
// dispatching each to the appropriate handler. It also starts and owns
// the write-behind flush goroutine for its lifetime.
func (w *Worker) Run(ctx context.Context, r io.Reader) error {
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		w.drainWriteBehind(ctx)
	}()
	defer func() {
		close(w.writeBehind)
		<-flushDone
	}()

	seg := gsm.NewSegmenter(r)
	for seg.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record := seg.Text()
		switch gsm.Classify(record) {
		case gsm.KindHeader:
			w.handleHeader(record)
		case gsm.KindSystemInfo2:
			w.handleSystemInfo2(record)
		case gsm.KindMeasurementReport:
			w.handleMeasurementReport(record)
		}
	}
	return seg.Err()
}

func (w *Worker) handleHeader(record string) {
	hdr, err := w.parser.ParseHeader(record)
	if err != nil {
		w.logger.WithError(err).Debug("decoder: unparseable TAP header, ignoring")
		return
	}
	w.mu.Lock()
	w.serving = hdr.ARFCN
	w.servingKnown = true
	w.mu.Unlock()
}

func (w *Worker) handleSystemInfo2(record string) {
	si2, err := w.parser.ParseSystemInformation2(record)
	if err != nil {
		w.logger.WithError(err).Debug("decoder: unparseable system information, ignoring")
		return
	}
	w.SetNeighbors(si2.ARFCNs)
}

// SetNeighbors replaces the worker's last-known NeighborList and prunes
// the in-memory max/recent state down to the new tracked set (the new
// NeighborList plus the current serving ARFCN), queuing deletes for
// anything dropped.
func (w *Worker) SetNeighbors(neighbors gsm.NeighborList) {
	w.mu.Lock()
	tracked := make(map[gsm.ARFCN]bool, len(neighbors)+1)
	for _, a := range neighbors {
		tracked[a] = true
	}
	if w.servingKnown {
		tracked[w.serving] = true
	}

	var dropped []gsm.ARFCN
	for arfcn := range w.maxStrength {
		if !tracked[arfcn] {
			dropped = append(dropped, arfcn)
			delete(w.maxStrength, arfcn)
			delete(w.recent, arfcn)
		}
	}
	w.neighbors = neighbors
	w.mu.Unlock()

	for _, arfcn := range dropped {
		arfcn := arfcn
		w.enqueueWrite(func(st *store.Store) error {
			return st.DeleteRecentStrength(arfcn)
		})
	}
}

func (w *Worker) handleMeasurementReport(record string) {
	w.mu.Lock()
	ignoring := w.ignoreReports
	servingKnown := w.servingKnown
	serving := w.serving
	neighbors := w.neighbors
	w.mu.Unlock()

	if ignoring || !servingKnown || len(neighbors) == 0 {
		return
	}

	report, err := w.parser.ParseMeasurementReport(record, neighbors, serving)
	if err != nil {
		w.logger.WithError(err).Debug("decoder: unparseable measurement report, ignoring")
		return
	}
	if !report.Valid {
		return
	}

	w.pushReport(report)
	w.updateStrengths(report)
	w.flushPendingWrites()
}

func (w *Worker) pushReport(r gsm.MeasurementReport) {
	w.reportsMu.Lock()
	defer w.reportsMu.Unlock()
	if len(w.reports) >= MaxDrainedReports {
		w.reports = w.reports[1:]
	}
	w.reports = append(w.reports, r)
}

func (w *Worker) updateStrengths(r gsm.MeasurementReport) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for arfcn, rssi := range r.Strengths {
		if max, ok := w.maxStrength[arfcn]; !ok || rssi > max {
			w.maxStrength[arfcn] = rssi
		}
		window := append(w.recent[arfcn], float64(rssi))
		if len(window) > RecentWidth {
			window = window[len(window)-RecentWidth:]
		}
		w.recent[arfcn] = window
	}
}

// flushPendingWrites queues the current max/recent snapshot for the
// tracked ARFCN set onto the write-behind channel.
func (w *Worker) flushPendingWrites() {
	w.mu.Lock()
	maxSnapshot := make(map[gsm.ARFCN]gsm.RSSI, len(w.maxStrength))
	for arfcn, rssi := range w.maxStrength {
		maxSnapshot[arfcn] = rssi
	}
	type recentSnapshot struct {
		mean  float64
		count int
	}
	recentSnapshots := make(map[gsm.ARFCN]recentSnapshot, len(w.recent))
	for arfcn, samples := range w.recent {
		if len(samples) == 0 {
			continue
		}
		var sum float64
		for _, s := range samples {
			sum += s
		}
		recentSnapshots[arfcn] = recentSnapshot{mean: sum / float64(len(samples)), count: len(samples)}
	}
	w.mu.Unlock()

	now := time.Now()
	w.enqueueWrite(func(st *store.Store) error {
		return st.UpsertMaxStrengths(maxSnapshot, now)
	})
	for arfcn, snap := range recentSnapshots {
		arfcn, snap := arfcn, snap
		w.enqueueWrite(func(st *store.Store) error {
			return st.UpsertRecentStrength(arfcn, snap.mean, snap.count, now)
		})
	}
}

func (w *Worker) enqueueWrite(op writeBehindOp) {
	if w.store == nil {
		return
	}
	select {
	case w.writeBehind <- op:
	default:
		w.logger.Warn("decoder: write-behind queue full, dropping pending store mutation")
	}
}

func (w *Worker) drainWriteBehind(ctx context.Context) {
	for {
		select {
		case op, ok := <-w.writeBehind:
			if !ok {
				return
			}
			if w.store == nil {
				continue
			}
			if err := op(w.store); err != nil {
				w.logger.WithError(err).Warn("decoder: write-behind flush failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// RSSI returns, for every tracked ARFCN, the weighted strength
// (max+sum(recent))/(1+len(recent)). Only ARFCNs with a max-strength entry
// (from a parsed measurement report or a warm load) are reported; a TAP
// header alone adds none.
func (w *Worker) RSSI() map[gsm.ARFCN]float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[gsm.ARFCN]float64, len(w.maxStrength))
	for arfcn, max := range w.maxStrength {
		samples := w.recent[arfcn]
		var sum float64
		for _, s := range samples {
			sum += s
		}
		out[arfcn] = (float64(max) + sum) / float64(1+len(samples))
	}
	return out
}

// Reports drains and returns every MeasurementReport accumulated since
// the previous call.
func (w *Worker) Reports() []gsm.MeasurementReport {
	w.reportsMu.Lock()
	defer w.reportsMu.Unlock()
	out := w.reports
	w.reports = nil
	return out
}

// CurrentARFCN returns the serving ARFCN last learned from a TAP header,
// and whether one has been observed yet.
func (w *Worker) CurrentARFCN() (gsm.ARFCN, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.serving, w.servingKnown
}

// CurrentNeighbors returns the NeighborList last learned from a System
// Information Type 2 message.
func (w *Worker) CurrentNeighbors() gsm.NeighborList {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.neighbors
}

// SetIgnoreReports sets or clears ignore_reports. The Controller calls
// this both to suppress reports during a retune's settle interval and to
// clear a stale flag after StaleIgnoreAfter has elapsed.
func (w *Worker) SetIgnoreReports(ignore bool, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ignoreReports = ignore
	if ignore {
		w.ignoreSince = at
	}
}

// IgnoreReportsSince reports whether ignore_reports is set and, if so,
// since when — letting the Controller decide whether it has gone stale.
func (w *Worker) IgnoreReportsSince() (ignoring bool, since time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ignoreReports, w.ignoreSince
}
