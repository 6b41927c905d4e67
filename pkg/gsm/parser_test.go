package gsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedParser(at time.Time) *Parser {
	return &Parser{now: func() time.Time { return at }}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		record string
		want   Kind
	}{
		{"header", "GSM TAP Header\n    ARFCN: 33", KindHeader},
		{"sysinfo2", "GSM CCCH - System Information Type 2\n    List of ARFCNs = 1 2 3", KindSystemInfo2},
		{"measreport", "GSM A-I/F DTAP - Measurement Report\n    blah", KindMeasurementReport},
		{"unknown", "Some other protocol message", KindUnknown},
		{"leading whitespace on first line still classifies", "  GSM TAP Header\n    ARFCN: 1", KindHeader},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.record))
		})
	}
}

func TestParseHeader(t *testing.T) {
	p := NewParser()

	hdr, err := p.ParseHeader("GSM TAP Header\n    Version: 2\n    ARFCN: 47\n")
	require.NoError(t, err)
	assert.Equal(t, ARFCN(47), hdr.ARFCN)

	_, err = p.ParseHeader("GSM TAP Header\n    Version: 2\n")
	assert.Error(t, err)
}

func TestParseHeader_RejectsOutOfRangeARFCN(t *testing.T) {
	p := NewParser()
	_, err := p.ParseHeader("GSM TAP Header\n    ARFCN: 200\n")
	assert.Error(t, err)
}

func TestParseSystemInformation2(t *testing.T) {
	p := NewParser()
	record := `GSM CCCH - System Information Type 2
    Neighbour Cell Description - BCCH Frequency List
    List of ARFCNs = 23 33 51 59 99
    NCC Permitted
    1111 1111 = NCC Permitted: 0xff
`
	si2, err := p.ParseSystemInformation2(record)
	require.NoError(t, err)
	assert.Equal(t, NeighborList{23, 33, 51, 59, 99}, si2.ARFCNs)
	assert.Equal(t, uint8(0xff), si2.NCCPermitted)
}

func TestParseSystemInformation2_DeduplicatesAndCaps(t *testing.T) {
	p := NewParser()
	record := `GSM CCCH - System Information Type 2
    List of ARFCNs = 1 1 2 2 3
    0000 1111 = NCC Permitted: 0x0f
`
	si2, err := p.ParseSystemInformation2(record)
	require.NoError(t, err)
	assert.Equal(t, NeighborList{1, 2, 3}, si2.ARFCNs)
	assert.Equal(t, uint8(0x0f), si2.NCCPermitted)
}

// The parsed report's key set equals NeighborList ∪ {serving ARFCN}.
func TestParseMeasurementReport_NeighborIndexMapping(t *testing.T) {
	p := fixedParser(time.Unix(0, 0))
	neighbors := NeighborList{23, 33, 51, 59, 99}

	record := `GSM A-I/F DTAP - Measurement Report
    Measurement Results
        ..01 0000 = RXLEV-FULL-SERVING-CELL: -95 <= x < -94 dBm (16)
        .... ...0  01.. .... = NO-NCELL-M: 1 neighbour cell measurement result (1)
        ..01 0001 = RXLEV-NCELL: 17
        0001 0... = BCCH-FREQ-NCELL: 2
`
	report, err := p.ParseMeasurementReport(record, neighbors, 33)
	require.NoError(t, err)
	require.True(t, report.Valid)

	assert.Equal(t, map[ARFCN]RSSI{
		23: Unreported,
		33: 16,
		51: 17,
		59: Unreported,
		99: Unreported,
	}, report.Strengths)
}

func TestParseMeasurementReport_CountMismatchInvalid(t *testing.T) {
	p := NewParser()
	neighbors := NeighborList{23, 33, 51, 59, 99}

	record := `GSM A-I/F DTAP - Measurement Report
        ..01 0000 = RXLEV-FULL-SERVING-CELL: -95 <= x < -94 dBm (16)
        .... ...0  01.. .... = NO-NCELL-M: 2 neighbour cell measurement result (2)
        ..01 0001 = RXLEV-NCELL: 17
        0001 0... = BCCH-FREQ-NCELL: 2
`
	report, err := p.ParseMeasurementReport(record, neighbors, 33)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Nil(t, report.Strengths)
}

func TestParseMeasurementReport_MissingNCellCountInvalid(t *testing.T) {
	p := NewParser()
	record := `GSM A-I/F DTAP - Measurement Report
        ..01 0000 = RXLEV-FULL-SERVING-CELL: -95 <= x < -94 dBm (16)
`
	report, err := p.ParseMeasurementReport(record, NeighborList{33}, 33)
	require.NoError(t, err)
	assert.False(t, report.Valid)
}

func TestParseMeasurementReport_MissingServingRXLevIsError(t *testing.T) {
	p := NewParser()
	record := "GSM A-I/F DTAP - Measurement Report\n    nothing useful here\n"
	_, err := p.ParseMeasurementReport(record, NeighborList{33}, 33)
	assert.Error(t, err)
}

func TestParseSystemInformation2_RejectsOutOfRangeARFCN(t *testing.T) {
	p := NewParser()
	record := `GSM CCCH - System Information Type 2
    List of ARFCNs = 1 200
    0000 0000 = NCC Permitted: 0x00
`
	_, err := p.ParseSystemInformation2(record)
	assert.Error(t, err)
}
