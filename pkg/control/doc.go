/*
Package control implements the two controllers that tie a BTS Driver and
Decoder Worker pair to the Observation Store: the Single-BTS Controller,
which periodically retunes one unit onto a safe channel, and the Dual-BTS
Handover Controller, which runs a time-phased attenuation schedule across
two units and reacts to interference detected in their drained
measurement reports.

A BTSUnit bundles everything a cycle needs about one physical unit: its
driver, its decoder, and the scheduling state (last retune, ignore_reports
bookkeeping, attenuation phase) a controller mutates each tick.
*/
package control
