package bts

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// ConfigStore is the BTS configuration key/value store: at least
// GSM.Radio.C0, GSM.Neighbors, CLI.SocketPath, Peering.NeighborTable.Path,
// TRX.RadioFrequencyOffset, TRX.TxAttenOffset. Values are always strings,
// matching the underlying stack's own representation.
type ConfigStore struct {
	db *sql.DB
}

// OpenConfigStore opens the configuration database at path, creating its
// table if this is a fresh database (the underlying stack normally owns
// this schema; tests and first-run deployments rely on this fallback).
func OpenConfigStore(path string) (*ConfigStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("bts: open config store %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS CONFIG (KEYSTRING TEXT PRIMARY KEY, VALUESTR TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("bts: ensure config schema: %w", err)
	}
	return &ConfigStore{db: db}, nil
}

// Close releases the configuration store's handle.
func (c *ConfigStore) Close() error { return c.db.Close() }

// Get reads a single configuration key. found is false when the key is
// absent, which the caller treats the same as a read failure.
func (c *ConfigStore) Get(key string) (value string, found bool, err error) {
	row := c.db.QueryRow(`SELECT VALUESTR FROM CONFIG WHERE KEYSTRING = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("bts: read config key %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes a configuration key. A write rejected by the underlying
// store surfaces as a non-nil error; the caller is expected to log it
// and continue its cycle rather than abort.
func (c *ConfigStore) Set(key, value string) error {
	_, err := c.db.Exec(`INSERT INTO CONFIG (KEYSTRING, VALUESTR) VALUES (?, ?)
		ON CONFLICT(KEYSTRING) DO UPDATE SET VALUESTR = excluded.VALUESTR`, key, value)
	if err != nil {
		return fmt.Errorf("bts: write config key %q: %w", key, err)
	}
	return nil
}

// NeighborTableStore is the per-BTS NeighborTable store the driver
// populates when synthesizing loopback peers.
type NeighborTableStore struct {
	db *sql.DB
}

// OpenNeighborTableStore opens the neighbor table database at path,
// creating its table if this is a fresh database.
func OpenNeighborTableStore(path string) (*NeighborTableStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("bts: open neighbor table %s: %w", path, err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS NEIGHBOR_TABLE (
		IP      TEXT PRIMARY KEY,
		UPDATED INTEGER NOT NULL,
		HOLDOFF INTEGER NOT NULL,
		C0      INTEGER NOT NULL,
		BSIC    INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bts: ensure neighbor table schema: %w", err)
	}
	return &NeighborTableStore{db: db}, nil
}

// Close releases the neighbor table's handle.
func (n *NeighborTableStore) Close() error { return n.db.Close() }

// NeighborRow is one fabricated NeighborTable entry: (ip:port, updated,
// holdoff, c0, bsic).
type NeighborRow struct {
	IP      string
	Updated int64 // unix seconds
	Holdoff int64
	C0      int
	BSIC    int
}

// Upsert deletes any existing row for this IP or this ARFCN and inserts row
// in their place, so both columns stay unique (only IP is a declared key).
func (n *NeighborTableStore) Upsert(row NeighborRow) error {
	tx, err := n.db.Begin()
	if err != nil {
		return fmt.Errorf("bts: begin neighbor table upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM NEIGHBOR_TABLE WHERE IP = ? OR C0 = ?`, row.IP, row.C0); err != nil {
		return fmt.Errorf("bts: delete stale neighbor table rows: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO NEIGHBOR_TABLE (IP, UPDATED, HOLDOFF, C0, BSIC) VALUES (?, ?, ?, ?, ?)`,
		row.IP, row.Updated, row.Holdoff, row.C0, row.BSIC); err != nil {
		return fmt.Errorf("bts: insert neighbor table row: %w", err)
	}
	return tx.Commit()
}
