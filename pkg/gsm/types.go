package gsm

import (
	"fmt"
	"time"
)

// ARFCN is an Absolute Radio Frequency Channel Number, the integer label
// GSM uses for a broadcast channel. Valid values are 1..124 inclusive.
type ARFCN int

// MinARFCN and MaxARFCN bound the GSM 900 channel numbering used throughout
// this system.
const (
	MinARFCN ARFCN = 1
	MaxARFCN ARFCN = 124
)

// Valid reports whether a is within the GSM 900 ARFCN range.
func (a ARFCN) Valid() bool {
	return a >= MinARFCN && a <= MaxARFCN
}

// RSSI is a received signal strength reading in raw GSM units, 0..63.
// Unreported is a sentinel meaning "expected in this measurement but not
// actually reported" — see MeasurementReport for why that distinction matters.
type RSSI int

// Unreported is the sentinel RSSI value assigned to an ARFCN that a
// MeasurementReport's NeighborList expected to hear from but didn't.
const Unreported RSSI = -1

// NeighborList is the ordered set of ARFCNs most recently announced by the
// serving cell in a System Information Type 2 message. It never exceeds
// MaxNeighbors entries and never repeats an ARFCN.
type NeighborList []ARFCN

// MaxNeighbors bounds NeighborList's length.
const MaxNeighbors = 32

// dedupeCapped returns arfcns with duplicates removed, keeping first
// occurrence order, truncated to MaxNeighbors entries.
func dedupeCapped(arfcns []ARFCN) NeighborList {
	seen := make(map[ARFCN]bool, len(arfcns))
	out := make(NeighborList, 0, len(arfcns))
	for _, a := range arfcns {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
		if len(out) == MaxNeighbors {
			break
		}
	}
	return out
}

// Index returns the position of target within the list, or -1 if absent.
func (n NeighborList) Index(target ARFCN) int {
	for i, a := range n {
		if a == target {
			return i
		}
	}
	return -1
}

// ServingHeader is the parsed form of a "GSM TAP Header" record: it
// identifies the ARFCN the dissector is currently decoding.
type ServingHeader struct {
	ARFCN ARFCN
}

// SystemInformation2 is the parsed form of a "GSM CCCH - System Information
// Type 2" record: the serving cell's neighbor list and NCC-permitted mask.
type SystemInformation2 struct {
	ARFCNs        NeighborList
	NCCPermitted  uint8 // 8-bit mask, two 4-bit groups in the dissector text
}

// MeasurementReport is the parsed form of a "GSM A-I/F DTAP - Measurement
// Report" record: a snapshot of RSSI for the serving cell and every ARFCN
// the current NeighborList expects to hear from.
//
// Strengths always has one entry per ARFCN in the NeighborList that was in
// effect when the report was parsed, plus the serving ARFCN. An ARFCN that
// the neighbor cell measurements didn't mention keeps the Unreported
// sentinel — that absence is itself evidence the channel is quiet (see
// pkg/decoder).
type MeasurementReport struct {
	Timestamp    time.Time
	ServingARFCN ARFCN
	Strengths    map[ARFCN]RSSI
	Valid        bool
}

func (r MeasurementReport) String() string {
	return fmt.Sprintf("%s %v", r.Timestamp.Format(time.RFC3339Nano), r.Strengths)
}

// Kind identifies which of the three record shapes a raw dissector record
// matches, based on its first line.
type Kind int

const (
	// KindUnknown is any record the Parser does not recognize.
	KindUnknown Kind = iota
	KindHeader
	KindSystemInfo2
	KindMeasurementReport
)

const (
	headerPrefix  = "GSM TAP Header"
	sysInfo2Pref  = "GSM CCCH - System Information Type 2"
	measRepPrefix = "GSM A-I/F DTAP - Measurement Report"
)
