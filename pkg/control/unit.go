package control

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openbts-tools/gsmws/hardware/bts"
	"github.com/openbts-tools/gsmws/pkg/decoder"
)

// BTSUnit bundles everything a controller cycle needs about one physical
// BTS: its driver, its decoder, and the small amount of scheduling state
// a cycle mutates. NeighborPort is the synthesized-peer port a
// HandoverDriver uses when two units share one host and need distinct
// loopback ports.
type BTSUnit struct {
	ID           uuid.UUID
	Name         string
	Driver       bts.Driver
	Decoder      *decoder.Worker
	NeighborPort int

	startTime time.Time

	mu        sync.Mutex
	lastCycle time.Time
}

// NewBTSUnit creates a BTSUnit whose scheduling clock starts now.
func NewBTSUnit(name string, driver bts.Driver, dec *decoder.Worker, neighborPort int) *BTSUnit {
	return &BTSUnit{
		ID:           uuid.New(),
		Name:         name,
		Driver:       driver,
		Decoder:      dec,
		NeighborPort: neighborPort,
		startTime:    time.Now(),
	}
}

// StartTime is the reference point the Dual-BTS Handover Controller's
// attenuation schedule is phased from.
func (u *BTSUnit) StartTime() time.Time { return u.startTime }

// LastCycle returns the last time this unit completed a NEIGHBOR_CYCLE
// retune.
func (u *BTSUnit) LastCycle() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastCycle
}

// SetLastCycle records a completed retune's timestamp.
func (u *BTSUnit) SetLastCycle(t time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastCycle = t
}
