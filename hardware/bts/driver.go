package bts

import (
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openbts-tools/gsmws/pkg/gsm"
)

// Configuration keys consumed/produced by every Driver implementation.
const (
	keyRadioC0           = "GSM.Radio.C0"
	keyNeighbors         = "GSM.Neighbors"
	keyRadioFreqOffset   = "TRX.RadioFrequencyOffset"
	keyRadioFreqOffsetDV = "TRX.RadioFrequencyOffset.default"
	keyTxAttenOffset     = "TRX.TxAttenOffset"
)

// offAttenDB is the attenuation state 3 value; a unit holding at least
// this much attenuation for offHoldDuration is considered "off".
const offAttenDB = 80

const offHoldDuration = 10 * time.Second

// Driver is the capability set the Controller depends on, letting it stay
// agnostic to which underlying stack variant it is steering.
type Driver interface {
	CurrentARFCN() (gsm.ARFCN, error)
	ChangeARFCN(new gsm.ARFCN, immediate bool) error
	SetTxAtten(db int) error
	SetNeighbors(arfcns []gsm.ARFCN, realIPs []string) error
	Restart() error
	IsOff() bool
	OffsetCorrect() (bool, error)
}

// base holds the state every Driver implementation shares: its
// configuration store, command socket, and last-applied attenuation.
type base struct {
	name            string
	transceiverName string
	config          *ConfigStore
	socket          *CommandSocket
	logger          logrus.FieldLogger

	lastAttenDB int
	lastAtten   time.Time
}

func (b *base) CurrentARFCN() (gsm.ARFCN, error) {
	raw, found, err := b.config.Get(keyRadioC0)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("bts[%s]: %s not set", b.name, keyRadioC0)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bts[%s]: malformed %s %q: %w", b.name, keyRadioC0, raw, err)
	}
	return gsm.ARFCN(n), nil
}

func (b *base) ChangeARFCN(new gsm.ARFCN, immediate bool) error {
	if !new.Valid() {
		err := fmt.Errorf("bts[%s]: rejecting ARFCN %d: out of range 1..124", b.name, new)
		b.logger.WithError(err).Error("change_arfcn rejected")
		return err
	}
	if err := b.config.Set(keyRadioC0, strconv.Itoa(int(new))); err != nil {
		b.logger.WithError(err).Error("change_arfcn: config write rejected")
		return err
	}
	if immediate {
		return b.Restart()
	}
	return nil
}

func (b *base) SetTxAtten(db int) error {
	if _, err := b.socket.Run(fmt.Sprintf("txatten %d", db)); err != nil {
		b.logger.WithError(err).Error("set_txatten failed")
		return err
	}
	b.lastAttenDB = db
	b.lastAtten = time.Now()
	return nil
}

// Restart kills the BTS and transceiver processes by name rather than
// going through the command socket: the underlying stack assumes it runs
// under a supervisor that respawns both processes on exit, the same
// "killall openbts transceiver" restart mechanism the original controller
// used.
func (b *base) Restart() error {
	b.logger.Warnf("restarting %s...", b.name)
	if err := exec.Command("killall", b.name, b.transceiverName).Run(); err != nil {
		b.logger.WithError(err).Error("restart failed")
		return fmt.Errorf("bts[%s]: restart: %w", b.name, err)
	}
	return nil
}

func (b *base) IsOff() bool {
	return b.lastAttenDB >= offAttenDB && time.Since(b.lastAtten) >= offHoldDuration
}

func (b *base) OffsetCorrect() (bool, error) {
	value, found, err := b.config.Get(keyRadioFreqOffset)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("bts[%s]: %s not set", b.name, keyRadioFreqOffset)
	}
	def, found, err := b.config.Get(keyRadioFreqOffsetDV)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("bts[%s]: %s not set", b.name, keyRadioFreqOffsetDV)
	}
	return value == def, nil
}

// LegacyDriver is the BTS Driver for the older stack variant, which takes
// a flat space-separated list of neighbor IPs and has no separate
// NeighborTable store.
type LegacyDriver struct {
	base
}

// NewLegacyDriver creates a LegacyDriver talking to the given
// configuration store and command socket. name and transceiverName
// are the OS process names killed on a restart.
func NewLegacyDriver(name, transceiverName string, config *ConfigStore, socket *CommandSocket, logger logrus.FieldLogger) *LegacyDriver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LegacyDriver{base: base{name: name, transceiverName: transceiverName, config: config, socket: socket, logger: logger}}
}

// SetNeighbors synthesizes one unroutable loopback IP per desired ARFCN
// (since this variant has no NeighborTable to write ARFCN-keyed rows
// into) and writes the combined real+synthesized IP list to GSM.Neighbors.
func (d *LegacyDriver) SetNeighbors(arfcns []gsm.ARFCN, realIPs []string) error {
	ips := make([]string, 0, len(realIPs)+len(arfcns))
	ips = append(ips, realIPs...)
	for i := range arfcns {
		ips = append(ips, synthesizeLoopback("127.0.9.0/24", i))
	}
	if err := d.config.Set(keyNeighbors, strings.Join(ips, " ")); err != nil {
		d.logger.WithError(err).Error("set_neighbors: config write rejected")
		return err
	}
	return nil
}

// HandoverDriver is the BTS Driver for the stack variant used by the
// Dual-BTS Handover Controller, which supports arbitrary-ARFCN scanning
// via synthesized peers registered directly in its NeighborTable store.
type HandoverDriver struct {
	base
	neighbors *NeighborTableStore
	port      int
}

// NewHandoverDriver creates a HandoverDriver. port is appended to every
// synthesized neighbor IP (the per-unit-port variant of the
// 127.0.10.0/24 synthesized-peer scheme). name and transceiverName are
// the OS process names killed on a restart.
func NewHandoverDriver(name, transceiverName string, config *ConfigStore, socket *CommandSocket, neighbors *NeighborTableStore, port int, logger logrus.FieldLogger) *HandoverDriver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HandoverDriver{
		base:      base{name: name, transceiverName: transceiverName, config: config, socket: socket, logger: logger},
		neighbors: neighbors,
		port:      port,
	}
}

// SetNeighbors assigns neighbors for arbitrary-ARFCN scanning: real peer
// IPs are prefixed to the list, then one synthesized loopback IP per
// ARFCN is appended; GSM.Neighbors is rewritten with the combined list,
// and a NeighborTable row is fabricated for each synthesized ARFCN.
func (d *HandoverDriver) SetNeighbors(arfcns []gsm.ARFCN, realIPs []string) error {
	synthetic := make([]string, len(arfcns))
	for i := range arfcns {
		synthetic[i] = synthesizeLoopback("127.0.10.0/24", i)
		if d.port != 0 {
			synthetic[i] = fmt.Sprintf("%s:%d", synthetic[i], d.port)
		}
	}

	ips := make([]string, 0, len(realIPs)+len(synthetic))
	ips = append(ips, realIPs...)
	ips = append(ips, synthetic...)
	if err := d.config.Set(keyNeighbors, strings.Join(ips, " ")); err != nil {
		d.logger.WithError(err).Error("set_neighbors: config write rejected")
		return err
	}

	now := time.Now().Add(-10 * time.Second).Unix()
	for i, arfcn := range arfcns {
		row := NeighborRow{
			IP:      synthetic[i],
			Updated: now,
			Holdoff: 1 << 30,
			C0:      int(arfcn),
			BSIC:    1,
		}
		if err := d.neighbors.Upsert(row); err != nil {
			d.logger.WithError(err).WithField("arfcn", arfcn).Error("set_neighbors: neighbor table write failed, will retry next tick")
		}
	}
	return nil
}

// synthesizeLoopback builds the i-th unroutable peer address within cidr,
// starting at host offset 10 and incrementing per index.
func synthesizeLoopback(cidr string, i int) string {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Sprintf("127.0.10.%d", 10+i)
	}
	base := ip.Mask(ipNet.Mask).To4()
	host := 10 + i
	return fmt.Sprintf("%d.%d.%d.%d", base[0], base[1], base[2], int(base[3])+host)
}
