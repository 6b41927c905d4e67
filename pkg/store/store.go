package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sirupsen/logrus"

	"github.com/openbts-tools/gsmws/pkg/gsm"
)

const schema = `
CREATE TABLE IF NOT EXISTS AVAIL_ARFCN (
	ARFCN     INTEGER PRIMARY KEY,
	TIMESTAMP TEXT NOT NULL,
	RSSI      REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS MAX_STRENGTHS (
	ARFCN     INTEGER PRIMARY KEY,
	TIMESTAMP TEXT NOT NULL,
	RSSI      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS AVG_STRENGTHS (
	ARFCN     INTEGER PRIMARY KEY,
	TIMESTAMP TEXT NOT NULL,
	RSSI      REAL NOT NULL,
	COUNT     INTEGER NOT NULL
);
`

// AvailabilityRecord is one row of AVAIL_ARFCN: the classifier's view of an
// ARFCN's current occupancy.
type AvailabilityRecord struct {
	Timestamp time.Time
	ARFCN     gsm.ARFCN
	RSSI      float64
}

// RecentSeed is what WarmLoad reconstructs for a single ARFCN's recent
// window: count copies of the stored mean, the best approximation
// available since the store keeps only the mean, not the sample history.
type RecentSeed struct {
	Mean  float64
	Count int
}

// Store is the Observation Store: durable per-ARFCN signal strength
// summaries shared by every Decoder Worker and the Controller. All access
// is serialized through mu, held for the duration of a logical operation
// including any follow-up expiry scan.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	logger logrus.FieldLogger
}

// Open opens (creating if necessary) the SQLite-backed Observation Store at
// path and runs its schema migration.
func Open(path string, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite: one writer, and we already serialize with mu

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}

	logger.WithField("path", path).Info("observation store opened")
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// UpsertAvailability updates AVAIL_ARFCN with rssis (a weighted-RSSI
// snapshot, one entry per currently known ARFCN), then deletes any row
// whose timestamp is older than 4*neighborCycle.
func (s *Store) UpsertAvailability(rssis map[gsm.ARFCN]float64, now time.Time, neighborCycle time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin upsert_availability: %w", err)
	}
	defer tx.Rollback()

	stmt := `INSERT INTO AVAIL_ARFCN (ARFCN, TIMESTAMP, RSSI) VALUES (?, ?, ?)
		ON CONFLICT(ARFCN) DO UPDATE SET TIMESTAMP=excluded.TIMESTAMP, RSSI=excluded.RSSI`
	for arfcn, rssi := range rssis {
		if !arfcn.Valid() {
			return fmt.Errorf("store: upsert_availability: ARFCN %d out of range", arfcn)
		}
		if _, err := tx.Exec(stmt, int(arfcn), now.Format(time.RFC3339Nano), rssi); err != nil {
			return fmt.Errorf("store: upsert ARFCN %d: %w", arfcn, err)
		}
	}

	expiry := now.Add(-4 * neighborCycle)
	res, err := tx.Exec(`DELETE FROM AVAIL_ARFCN WHERE TIMESTAMP < ?`, expiry.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: expire AVAIL_ARFCN: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.WithField("count", n).Debug("expired stale AVAIL_ARFCN rows")
	}

	return tx.Commit()
}

// SafeARFCNs returns every ARFCN whose weighted RSSI is strictly
// negative: no other occupant detected.
func (s *Store) SafeARFCNs() ([]gsm.ARFCN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT ARFCN FROM AVAIL_ARFCN WHERE RSSI < 0`)
	if err != nil {
		return nil, fmt.Errorf("store: safe_arfcns: %w", err)
	}
	defer rows.Close()

	var out []gsm.ARFCN
	for rows.Next() {
		var a int
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("store: safe_arfcns scan: %w", err)
		}
		out = append(out, gsm.ARFCN(a))
	}
	return out, rows.Err()
}

// TrackedARFCNs returns every ARFCN currently present in AVAIL_ARFCN,
// regardless of sign — used by the Controller to pick neighbors that
// haven't been scanned before.
func (s *Store) TrackedARFCNs() ([]gsm.ARFCN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT ARFCN FROM AVAIL_ARFCN`)
	if err != nil {
		return nil, fmt.Errorf("store: tracked_arfcns: %w", err)
	}
	defer rows.Close()

	var out []gsm.ARFCN
	for rows.Next() {
		var a int
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("store: tracked_arfcns scan: %w", err)
		}
		out = append(out, gsm.ARFCN(a))
	}
	return out, rows.Err()
}

// WarmLoad reconstructs the Decoder Worker's in-memory state after a
// restart: the max-ever RSSI per ARFCN, and a seed for each ARFCN's
// recent window (`count` copies of the stored mean, not the original
// samples).
func (s *Store) WarmLoad() (maxStrengths map[gsm.ARFCN]gsm.RSSI, recentSeed map[gsm.ARFCN]RecentSeed, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxStrengths = make(map[gsm.ARFCN]gsm.RSSI)
	rows, err := s.db.Query(`SELECT ARFCN, RSSI FROM MAX_STRENGTHS`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: warm_load max_strengths: %w", err)
	}
	for rows.Next() {
		var a int
		var rssi int
		if err := rows.Scan(&a, &rssi); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("store: warm_load max_strengths scan: %w", err)
		}
		maxStrengths[gsm.ARFCN(a)] = gsm.RSSI(rssi)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	rows.Close()

	recentSeed = make(map[gsm.ARFCN]RecentSeed)
	rows, err = s.db.Query(`SELECT ARFCN, RSSI, COUNT FROM AVG_STRENGTHS`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: warm_load avg_strengths: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a, count int
		var mean float64
		if err := rows.Scan(&a, &mean, &count); err != nil {
			return nil, nil, fmt.Errorf("store: warm_load avg_strengths scan: %w", err)
		}
		recentSeed[gsm.ARFCN(a)] = RecentSeed{Mean: mean, Count: count}
	}
	return maxStrengths, recentSeed, rows.Err()
}

// UpsertMaxStrengths updates MAX_STRENGTHS for every ARFCN in values
// (inserting new rows, updating existing ones when the new value is
// strictly greater), then deletes any row for an ARFCN absent from
// values: an ARFCN no longer in the current measurement set.
func (s *Store) UpsertMaxStrengths(values map[gsm.ARFCN]gsm.RSSI, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin update_max_strength: %w", err)
	}
	defer tx.Rollback()

	for arfcn, rssi := range values {
		var existing sql.NullInt64
		if err := tx.QueryRow(`SELECT RSSI FROM MAX_STRENGTHS WHERE ARFCN=?`, int(arfcn)).Scan(&existing); err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("store: update_max_strength read ARFCN %d: %w", arfcn, err)
		}
		switch {
		case !existing.Valid:
			if _, err := tx.Exec(`INSERT INTO MAX_STRENGTHS (ARFCN, TIMESTAMP, RSSI) VALUES (?, ?, ?)`,
				int(arfcn), now.Format(time.RFC3339Nano), int(rssi)); err != nil {
				return fmt.Errorf("store: insert MAX_STRENGTHS ARFCN %d: %w", arfcn, err)
			}
		case int64(rssi) > existing.Int64:
			if _, err := tx.Exec(`UPDATE MAX_STRENGTHS SET TIMESTAMP=?, RSSI=? WHERE ARFCN=?`,
				now.Format(time.RFC3339Nano), int(rssi), int(arfcn)); err != nil {
				return fmt.Errorf("store: update MAX_STRENGTHS ARFCN %d: %w", arfcn, err)
			}
		}
	}

	rows, err := tx.Query(`SELECT ARFCN FROM MAX_STRENGTHS`)
	if err != nil {
		return fmt.Errorf("store: list MAX_STRENGTHS: %w", err)
	}
	var toDelete []int
	for rows.Next() {
		var a int
		if err := rows.Scan(&a); err != nil {
			rows.Close()
			return err
		}
		if _, ok := values[gsm.ARFCN(a)]; !ok {
			toDelete = append(toDelete, a)
		}
	}
	rows.Close()
	for _, a := range toDelete {
		if _, err := tx.Exec(`DELETE FROM MAX_STRENGTHS WHERE ARFCN=?`, a); err != nil {
			return fmt.Errorf("store: delete MAX_STRENGTHS ARFCN %d: %w", a, err)
		}
	}

	return tx.Commit()
}

// UpsertRecentStrength records the latest mean/count of an ARFCN's recent
// window (AVG_STRENGTHS), replacing any prior row for that ARFCN.
func (s *Store) UpsertRecentStrength(arfcn gsm.ARFCN, mean float64, count int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO AVG_STRENGTHS (ARFCN, TIMESTAMP, RSSI, COUNT) VALUES (?, ?, ?, ?)
		ON CONFLICT(ARFCN) DO UPDATE SET TIMESTAMP=excluded.TIMESTAMP, RSSI=excluded.RSSI, COUNT=excluded.COUNT`,
		int(arfcn), now.Format(time.RFC3339Nano), mean, count)
	if err != nil {
		return fmt.Errorf("store: upsert AVG_STRENGTHS ARFCN %d: %w", arfcn, err)
	}
	return nil
}

// DeleteRecentStrength removes an ARFCN's AVG_STRENGTHS row — used when
// the ARFCN falls out of the current measurement set.
func (s *Store) DeleteRecentStrength(arfcn gsm.ARFCN) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM AVG_STRENGTHS WHERE ARFCN=?`, int(arfcn)); err != nil {
		return fmt.Errorf("store: delete AVG_STRENGTHS ARFCN %d: %w", arfcn, err)
	}
	return nil
}
