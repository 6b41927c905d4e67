/*
Package decoder implements the Decoder Worker: the long-running task
that owns one Stream Segmenter + Parser pair for a single physical BTS
and turns its dissector output into the running signal-strength
summaries the Controller reads.

A Worker tracks, per currently-relevant ARFCN, the strongest RSSI ever seen
and a bounded recent-sample window; RSSI combines the two into a single
weighted average that drifts toward -1 for channels nobody hears from,
which is what lets the Controller treat "never heard" as evidence a channel
is free. Parsed reports are also copied into a drain-once list the
Controller consumes once per cycle, and non-critical persistence to the
Observation Store happens off a write-behind queue so a slow disk never
blocks the parse loop.
*/
package decoder
