package gsm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Feed the segmenter two records separated by a header line; expect
// exactly two parsed records.
func TestSegmenter_TwoRecords(t *testing.T) {
	input := strings.Join([]string{
		"GSM TAP Header",
		"    ARFCN: 33",
		"GSM TAP Header",
		"    ARFCN: 51",
	}, "\n")

	seg := NewSegmenter(strings.NewReader(input))

	var records []string
	for seg.Scan() {
		records = append(records, seg.Text())
	}
	require.NoError(t, seg.Err())
	require.Len(t, records, 2)

	assert.Equal(t, "GSM TAP Header\n    ARFCN: 33", records[0])
	assert.Equal(t, "GSM TAP Header\n    ARFCN: 51", records[1])
}

func TestSegmenter_ThreeStartLinesYieldsThreeRecords(t *testing.T) {
	input := strings.Join([]string{
		"GSM TAP Header",
		"    ARFCN: 33",
		"GSM TAP Header",
		"    ARFCN: 51",
		"GSM TAP Header",
		"    ARFCN: 99",
	}, "\n")

	seg := NewSegmenter(strings.NewReader(input))

	var records []string
	for seg.Scan() {
		records = append(records, seg.Text())
	}
	require.NoError(t, seg.Err())
	require.Len(t, records, 3)
	assert.Equal(t, "GSM TAP Header\n    ARFCN: 33", records[0])
	assert.Equal(t, "GSM TAP Header\n    ARFCN: 51", records[1])
	assert.Equal(t, "GSM TAP Header\n    ARFCN: 99", records[2])
}

func TestSegmenter_EmptyStream(t *testing.T) {
	seg := NewSegmenter(strings.NewReader(""))
	assert.False(t, seg.Scan())
	assert.NoError(t, seg.Err())
}

func TestSegmenter_ContinuationOnlyNoRecordStart(t *testing.T) {
	// A stream that starts with a continuation line is unusual but must not
	// panic; the stray line becomes a record of its own, emitted before the
	// first real record.
	input := "    stray continuation\nGSM TAP Header\n    ARFCN: 10\n"
	seg := NewSegmenter(strings.NewReader(input))

	var records []string
	for seg.Scan() {
		records = append(records, seg.Text())
	}
	require.Len(t, records, 2)
	assert.Equal(t, "    stray continuation", records[0])
	assert.Equal(t, "GSM TAP Header\n    ARFCN: 10", records[1])
}
