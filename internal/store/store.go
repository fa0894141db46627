// Package store persists the derived relations produced by flattening
// snapshot files: an aircraft dimension table and a position time series,
// backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Row is one flattened observation tagged with its source document's
// timestamp. Empty strings and nil pointers mean "absent".
type Row struct {
	ICAO         string
	Registration string
	Type         string
	Lat          *float64
	Lon          *float64
	AltBaro      *int64
	GroundSpeed  *float64
	Emergency    string
	Timestamp    int64
	HasTimestamp bool
}

// Aircraft is one row of the aircraft dimension table.
type Aircraft struct {
	ICAO         string  `json:"icao"`
	Registration *string `json:"registration"`
	Type         *string `json:"type"`
}

// Position is one row of the position time series.
type Position struct {
	Timestamp int64   `json:"timestamp"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// Stats aggregates the position history of a single aircraft.
type Stats struct {
	MaxAltitudeBaro *int64   `json:"max_altitude_baro"`
	MaxGroundSpeed  *float64 `json:"max_ground_speed"`
	HadEmergency    bool     `json:"had_emergency"`
}

// Store wraps the SQLite database holding the derived relations.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path. The derived
// tables are created by Rebuild, not here: a freshly opened store is the
// "uninitialized" state and all queries against it return empty results.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL so queries during a rebuild see the prior committed state.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Rebuild replaces the derived relations with ones built from rows. The
// whole rebuild runs in one write transaction: staging tables are populated
// and swapped in at commit, so a failure anywhere leaves the prior relations
// untouched and a concurrent reader never sees a partial state.
func (s *Store) Rebuild(ctx context.Context, rows []Row) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ddl := []string{
		`DROP TABLE IF EXISTS aircraft_staging`,
		`DROP TABLE IF EXISTS positions_staging`,
		`DROP TABLE IF EXISTS obs`,
		`CREATE TABLE aircraft_staging (
			icao         TEXT PRIMARY KEY,
			registration TEXT,
			type         TEXT
		)`,
		`CREATE TABLE positions_staging (
			icao          TEXT NOT NULL REFERENCES aircraft_staging(icao),
			timestamp     INTEGER NOT NULL,
			lat           REAL NOT NULL,
			lon           REAL NOT NULL,
			altitude_baro INTEGER,
			ground_speed  REAL,
			emergency     TEXT
		)`,
		`CREATE TEMP TABLE obs (
			icao         TEXT,
			registration TEXT,
			type         TEXT,
			lat          REAL,
			lon          REAL,
			altitude_baro INTEGER,
			ground_speed REAL,
			emergency    TEXT,
			timestamp    INTEGER
		)`,
	}
	for _, q := range ddl {
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("rebuild ddl: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO obs (icao, registration, type, lat, lon, altitude_baro, ground_speed, emergency, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare obs insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		var ts interface{}
		if r.HasTimestamp {
			ts = r.Timestamp
		}
		_, err = stmt.ExecContext(ctx,
			nullStr(r.ICAO), nullStr(r.Registration), nullStr(r.Type),
			r.Lat, r.Lon, r.AltBaro, r.GroundSpeed, nullStr(r.Emergency), ts)
		if err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}
	}

	// Aircraft dimension: one row per distinct non-null icao. MAX ignores
	// NULLs, giving a deterministic max-wins merge for registration/type.
	flatten := []string{
		`INSERT INTO aircraft_staging (icao, registration, type)
		 SELECT icao, MAX(registration), MAX(type)
		 FROM obs
		 WHERE icao IS NOT NULL
		 GROUP BY icao`,

		// Position facts: rows missing icao, coordinates or timestamp are
		// dropped entirely, per the retention rule.
		`INSERT INTO positions_staging (icao, timestamp, lat, lon, altitude_baro, ground_speed, emergency)
		 SELECT icao, timestamp, lat, lon, altitude_baro, ground_speed, emergency
		 FROM obs
		 WHERE icao IS NOT NULL
		   AND lat IS NOT NULL
		   AND lon IS NOT NULL
		   AND timestamp IS NOT NULL
		 ORDER BY icao, timestamp`,

		`DROP TABLE obs`,

		// Swap staging in. Still inside the transaction, so readers see
		// either the old tables or the new ones.
		`DROP TABLE IF EXISTS positions`,
		`DROP TABLE IF EXISTS aircraft`,
		`ALTER TABLE aircraft_staging RENAME TO aircraft`,
		`ALTER TABLE positions_staging RENAME TO positions`,
		`CREATE INDEX idx_aircraft_icao ON aircraft(icao)`,
		`CREATE INDEX idx_positions_icao_ts ON positions(icao, timestamp)`,
	}
	for _, q := range flatten {
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("rebuild relations: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}

// ListAircraft returns one page of the aircraft dimension, ordered by icao
// ascending. An uninitialized store yields an empty slice.
func (s *Store) ListAircraft(ctx context.Context, pageSize, page int) ([]Aircraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT icao, registration, type
		FROM aircraft
		ORDER BY icao ASC
		LIMIT ? OFFSET ?
	`, pageSize, page*pageSize)
	if err != nil {
		if isMissingTable(err) {
			return []Aircraft{}, nil
		}
		return nil, fmt.Errorf("list aircraft: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []Aircraft{}
	for rows.Next() {
		var a Aircraft
		var reg, typ sql.NullString
		if err := rows.Scan(&a.ICAO, &reg, &typ); err != nil {
			return nil, fmt.Errorf("scan aircraft: %w", err)
		}
		if reg.Valid {
			a.Registration = &reg.String
		}
		if typ.Valid {
			a.Type = &typ.String
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// ListPositions returns one page of an aircraft's position history, ordered
// by timestamp ascending. Unknown icao or uninitialized store yields empty.
func (s *Store) ListPositions(ctx context.Context, icao string, pageSize, page int) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, lat, lon
		FROM positions
		WHERE icao = ?
		ORDER BY timestamp ASC
		LIMIT ? OFFSET ?
	`, icao, pageSize, page*pageSize)
	if err != nil {
		if isMissingTable(err) {
			return []Position{}, nil
		}
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []Position{}
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Timestamp, &p.Lat, &p.Lon); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// AircraftStats aggregates the position rows of one aircraft. Zero rows
// yield null maxima and had_emergency=false.
func (s *Store) AircraftStats(ctx context.Context, icao string) (Stats, error) {
	var stats Stats
	var maxAlt sql.NullInt64
	var maxGS sql.NullFloat64
	var hadEmergency sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(altitude_baro),
		       MAX(ground_speed),
		       MAX(CASE WHEN emergency IS NOT NULL AND emergency != '' THEN 1 ELSE 0 END)
		FROM positions
		WHERE icao = ?
	`, icao).Scan(&maxAlt, &maxGS, &hadEmergency)
	if err != nil {
		if isMissingTable(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("aircraft stats: %w", err)
	}

	if maxAlt.Valid {
		stats.MaxAltitudeBaro = &maxAlt.Int64
	}
	if maxGS.Valid {
		stats.MaxGroundSpeed = &maxGS.Float64
	}
	stats.HadEmergency = hadEmergency.Valid && hadEmergency.Int64 == 1
	return stats, nil
}

// isMissingTable reports whether err is SQLite's "no such table", which here
// means the store has not been populated yet.
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
