/*
Package gsm recognizes and decodes the GSM messages emitted by a packet
dissector running in verbose mode against GSMTAP traffic (UDP/4729).

It does not talk to any dissector process itself — cmd/gsmwsd spawns the
dissector subprocess, and hardware/bts owns the BTS command socket. This
package is pure: it turns text into typed values.

# Main Components

## Segmenter

Segmenter splits a line-oriented stream into the individual records the
dissector prints, using indentation as the delimiter: a line beginning with
four spaces continues the previous record, anything else starts a new one.

## Parser

Parser recognizes the three record kinds this system cares about —
"GSM TAP Header", "GSM CCCH - System Information Type 2", and
"GSM A-I/F DTAP - Measurement Report" — and extracts their fields into
ServingHeader, SystemInformation2, and MeasurementReport respectively.

Example usage:

    seg := gsm.NewSegmenter(os.Stdin)
    p := gsm.NewParser()
    var neighbors gsm.NeighborList
    var serving gsm.ARFCN
    for seg.Scan() {
        switch kind := gsm.Classify(seg.Text()); kind {
        case gsm.KindHeader:
            hdr, _ := p.ParseHeader(seg.Text())
            serving = hdr.ARFCN
        case gsm.KindSystemInfo2:
            si2, _ := p.ParseSystemInformation2(seg.Text())
            neighbors = si2.ARFCNs
        case gsm.KindMeasurementReport:
            report, err := p.ParseMeasurementReport(seg.Text(), neighbors, serving)
            if err == nil && report.Valid {
                fmt.Println(report.Strengths)
            }
        }
    }
*/
package gsm
