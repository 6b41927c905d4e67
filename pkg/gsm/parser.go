package gsm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parser recognizes dissector records and extracts their fields. It holds
// no state of its own; NeighborList/serving ARFCN context is threaded
// through ParseMeasurementReport by the caller (the Decoder Worker).
type Parser struct {
	now func() time.Time
}

// NewParser creates a Parser using the real wall clock.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

var (
	headerARFCNRe    = regexp.MustCompile(`ARFCN:\s*(\d+)`)
	sysInfo2Re       = regexp.MustCompile(`(?s)List of ARFCNs\s*=([ \d]+).*?(\d{4} \d{4})\s*=\s*NCC Permitted`)
	servingRXLevRe   = regexp.MustCompile(`RXLEV-FULL-SERVING-CELL:.*?\((\d+)\)`)
	numNCellRe       = regexp.MustCompile(`NO-NCELL-M:.*?\((\d+)\)`)
	neighborResultRe = regexp.MustCompile(`RXLEV-NCELL:\s*(\d+)\n.*=\s*BCCH-FREQ-NCELL:\s*(\d+)`)
)

// Classify identifies which record kind a raw dissector record is, by
// inspecting its first line. Unrecognized records classify as KindUnknown.
func Classify(record string) Kind {
	first := record
	if idx := strings.IndexByte(record, '\n'); idx >= 0 {
		first = record[:idx]
	}
	first = strings.TrimSpace(first)

	switch {
	case strings.HasPrefix(first, headerPrefix):
		return KindHeader
	case strings.HasPrefix(first, sysInfo2Pref):
		return KindSystemInfo2
	case strings.HasPrefix(first, measRepPrefix):
		return KindMeasurementReport
	default:
		return KindUnknown
	}
}

// ParseHeader extracts the serving ARFCN from a "GSM TAP Header" record.
func (p *Parser) ParseHeader(record string) (ServingHeader, error) {
	m := headerARFCNRe.FindStringSubmatch(record)
	if m == nil {
		return ServingHeader{}, fmt.Errorf("gsm: GSM TAP Header missing ARFCN field")
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return ServingHeader{}, fmt.Errorf("gsm: GSM TAP Header ARFCN not an integer: %w", err)
	}
	arfcn := ARFCN(n)
	if !arfcn.Valid() {
		return ServingHeader{}, fmt.Errorf("gsm: ARFCN %d out of range 1..124", n)
	}
	return ServingHeader{ARFCN: arfcn}, nil
}

// ParseSystemInformation2 extracts the neighbor ARFCN list and NCC-permitted
// bitmap from a "GSM CCCH - System Information Type 2" record.
func (p *Parser) ParseSystemInformation2(record string) (SystemInformation2, error) {
	m := sysInfo2Re.FindStringSubmatch(record)
	if m == nil {
		return SystemInformation2{}, fmt.Errorf("gsm: System Information Type 2 missing ARFCN list or NCC Permitted field")
	}

	var arfcns []ARFCN
	for _, tok := range strings.Fields(m[1]) {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return SystemInformation2{}, fmt.Errorf("gsm: invalid ARFCN token %q: %w", tok, err)
		}
		a := ARFCN(n)
		if !a.Valid() {
			return SystemInformation2{}, fmt.Errorf("gsm: ARFCN %d out of range 1..124", n)
		}
		arfcns = append(arfcns, a)
	}

	ncc, err := parseNCCPermitted(m[2])
	if err != nil {
		return SystemInformation2{}, err
	}

	return SystemInformation2{ARFCNs: dedupeCapped(arfcns), NCCPermitted: ncc}, nil
}

// parseNCCPermitted turns the dissector's two 4-bit-group rendering
// ("1111 1111") into a single 8-bit mask.
func parseNCCPermitted(groups string) (uint8, error) {
	parts := strings.Fields(groups)
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 4 {
		return 0, fmt.Errorf("gsm: malformed NCC Permitted bitmap %q", groups)
	}
	hi, err := strconv.ParseUint(parts[0], 2, 8)
	if err != nil {
		return 0, fmt.Errorf("gsm: malformed NCC Permitted high nibble %q: %w", parts[0], err)
	}
	lo, err := strconv.ParseUint(parts[1], 2, 8)
	if err != nil {
		return 0, fmt.Errorf("gsm: malformed NCC Permitted low nibble %q: %w", parts[1], err)
	}
	return uint8(hi<<4 | lo), nil
}

// ParseMeasurementReport extracts per-ARFCN signal strengths from a
// "GSM A-I/F DTAP - Measurement Report" record.
//
// neighbors and serving are the NeighborList and ServingIdentity most
// recently observed by the caller — the report itself carries neither; it
// only carries the serving cell's RXLEV and, for each neighbor cell
// measurement, an RXLEV paired with an *index into neighbors* (not an
// ARFCN).
//
// The returned report's Valid field is false (and Strengths nil) when
// NO-NCELL-M is missing, the neighbor-pair count disagrees with it, or a
// pair's index falls outside neighbors — a discard-and-continue condition
// with a nil error. The error return is non-nil only when the
// RXLEV-FULL-SERVING-CELL field is missing or a numeric field fails to
// parse; Valid is false in that case too.
func (p *Parser) ParseMeasurementReport(record string, neighbors NeighborList, serving ARFCN) (MeasurementReport, error) {
	report := MeasurementReport{Timestamp: p.now()}

	servingMatch := servingRXLevRe.FindStringSubmatch(record)
	if servingMatch == nil {
		return report, fmt.Errorf("gsm: Measurement Report missing RXLEV-FULL-SERVING-CELL")
	}
	servingRXLev, err := strconv.Atoi(servingMatch[1])
	if err != nil {
		return report, fmt.Errorf("gsm: invalid RXLEV-FULL-SERVING-CELL: %w", err)
	}

	numCellsMatch := numNCellRe.FindStringSubmatch(record)
	if numCellsMatch == nil {
		// No NO-NCELL-M field: nothing to validate the neighbor pairs against.
		return report, nil
	}
	numCells, err := strconv.Atoi(numCellsMatch[1])
	if err != nil {
		return report, fmt.Errorf("gsm: invalid NO-NCELL-M: %w", err)
	}

	strengths := make(map[ARFCN]RSSI, len(neighbors)+1)
	for _, arfcn := range neighbors {
		strengths[arfcn] = Unreported
	}
	strengths[serving] = RSSI(servingRXLev)

	pairs := neighborResultRe.FindAllStringSubmatch(record, -1)
	if len(pairs) != numCells {
		return report, nil
	}

	for _, pair := range pairs {
		rxlev, err := strconv.Atoi(pair[1])
		if err != nil {
			return report, fmt.Errorf("gsm: invalid RXLEV-NCELL: %w", err)
		}
		idx, err := strconv.Atoi(pair[2])
		if err != nil {
			return report, fmt.Errorf("gsm: invalid BCCH-FREQ-NCELL index: %w", err)
		}
		if idx < 0 || idx >= len(neighbors) {
			return report, nil
		}
		strengths[neighbors[idx]] = RSSI(rxlev)
	}

	report.ServingARFCN = serving
	report.Strengths = strengths
	report.Valid = true
	return report, nil
}
