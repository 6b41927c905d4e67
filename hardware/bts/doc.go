/*
Package bts implements the BTS Driver: a thin client to one physical
BTS's configuration store, command socket, and neighbor table.

The underlying stack itself is an external collaborator — this package
only speaks its three contracts: a key/value configuration store
(read/write), a line-oriented Unix command socket, and a NeighborTable
store keyed by synthesized loopback IP. Two implementations of the Driver
interface are provided: LegacyDriver, for the flat-neighbor-string variant
of the underlying stack, and HandoverDriver, for the variant that supports
per-ARFCN neighbor scanning through synthesized peers and direct
NeighborTable rows.
*/
package bts
