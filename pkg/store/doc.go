/*
Package store implements the Observation Store: the durable, per-ARFCN
summary of radio activity that survives a controller restart.

It owns gsmws.db, a SQLite file with three tables — AVAIL_ARFCN,
MAX_STRENGTHS, and AVG_STRENGTHS — accessed through database/sql with the
pure-Go modernc.org/sqlite driver (no cgo, so the controller cross-compiles
cleanly for an embedded BTS host).

All access is serialized through a single mutex held for the duration of a
logical operation, including the follow-up expiry scan in UpsertAvailability.
*/
package store
