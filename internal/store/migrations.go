package store

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS locations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    country_code TEXT NOT NULL DEFAULT '',
    latitude REAL,
    longitude REAL,
    timezone TEXT,
    population INTEGER,
    created_at DATETIME NOT NULL,
    UNIQUE(name, country_code)
);

CREATE TABLE IF NOT EXISTS observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    location_id INTEGER NOT NULL REFERENCES locations(id),
    observed_at DATETIME NOT NULL,
    temperature_c REAL,
    feels_like_c REAL,
    humidity_pct INTEGER,
    pressure_hpa REAL,
    wind_speed_ms REAL,
    wind_direction_deg INTEGER,
    condition_code TEXT,
    condition_text TEXT,
    cloud_pct INTEGER,
    visibility_m INTEGER,
    precipitation_mm REAL,
    heat_index_c REAL,
    wind_chill_c REAL,
    flags TEXT,
    raw_json TEXT,
    created_at DATETIME NOT NULL,
    UNIQUE(location_id, observed_at)
);

CREATE TABLE IF NOT EXISTS forecasts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    location_id INTEGER NOT NULL REFERENCES locations(id),
    source TEXT NOT NULL,
    collected_at DATETIME NOT NULL,
    valid_at DATETIME NOT NULL,
    temperature_c REAL,
    temp_min_c REAL,
    temp_max_c REAL,
    feels_like_c REAL,
    humidity_pct INTEGER CHECK (humidity_pct IS NULL OR humidity_pct BETWEEN 0 AND 100),
    pressure_hpa REAL,
    wind_speed_ms REAL,
    wind_direction_deg INTEGER,
    condition_code TEXT,
    condition_text TEXT,
    cloud_pct INTEGER,
    precipitation_probability_pct REAL,
    precipitation_mm REAL,
    raw_json TEXT,
    UNIQUE(location_id, source, collected_at, valid_at)
);

CREATE TABLE IF NOT EXISTS daily_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    location_id INTEGER NOT NULL REFERENCES locations(id),
    report_date TEXT NOT NULL,
    avg_temperature_c REAL,
    min_temperature_c REAL,
    max_temperature_c REAL,
    avg_humidity_pct REAL,
    total_precipitation_mm REAL,
    dominant_condition TEXT,
    observation_count INTEGER NOT NULL DEFAULT 0,
    summary TEXT,
    generated_at DATETIME NOT NULL,
    UNIQUE(location_id, report_date)
);

CREATE INDEX IF NOT EXISTS idx_observations_location_time ON observations(location_id, observed_at);
CREATE INDEX IF NOT EXISTS idx_forecasts_location_valid ON forecasts(location_id, valid_at);
`,
	},
	{
		Version:     2,
		Description: "Add ingest_runs and raw_payloads for upstream auditing",
		SQL: `
CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    source TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    place TEXT,
    location_id INTEGER,
    http_status INTEGER,
    response_size_bytes INTEGER,
    records_parsed INTEGER,
    records_stored INTEGER,
    parse_errors INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);

CREATE TABLE IF NOT EXISTS raw_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ingest_run_id INTEGER REFERENCES ingest_runs(id),
    fetched_at DATETIME NOT NULL,
    source TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    location_id INTEGER,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL UNIQUE,
    schema_version INTEGER NOT NULL DEFAULT 1
);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		s.logger.Info("applying migration", zap.Int("version", m.Version), zap.String("description", m.Description))

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
