package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
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
CREATE TABLE IF NOT EXISTS raw_service_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    source_event_id TEXT,
    service_date DATE NOT NULL,
    operator TEXT NOT NULL,
    origin TEXT NOT NULL,
    destination TEXT NOT NULL,
    scheduled_departure_ts DATETIME NOT NULL,
    scheduled_arrival_ts DATETIME,
    actual_arrival_ts DATETIME,
    cancelled BOOLEAN NOT NULL,
    arrival_delay_minutes INTEGER,
    dep_hhmm TEXT NOT NULL,
    service_key TEXT NOT NULL UNIQUE,
    source_run_id TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_raw_events_corridor ON raw_service_events(origin, destination, service_date);
CREATE INDEX IF NOT EXISTS idx_raw_events_date ON raw_service_events(service_date);

CREATE TABLE IF NOT EXISTS daily_slot_agg (
    service_date DATE NOT NULL,
    operator TEXT NOT NULL,
    origin TEXT NOT NULL,
    destination TEXT NOT NULL,
    dep_hhmm TEXT NOT NULL,
    day_of_week INTEGER NOT NULL,
    n_services INTEGER NOT NULL,
    n_cancelled INTEGER NOT NULL,
    n_delayed_gt5 INTEGER NOT NULL,
    n_disrupted INTEGER NOT NULL,
    PRIMARY KEY (service_date, operator, origin, destination, dep_hhmm)
);

CREATE INDEX IF NOT EXISTS idx_daily_slot_agg_corridor ON daily_slot_agg(origin, destination, service_date);

CREATE TABLE IF NOT EXISTS slot_metrics (
    metric_date DATE NOT NULL,
    model_version TEXT NOT NULL,
    operator TEXT NOT NULL,
    origin TEXT NOT NULL,
    destination TEXT NOT NULL,
    day_of_week INTEGER NOT NULL,
    dep_hhmm TEXT NOT NULL,
    disruption_prob REAL NOT NULL,
    cancellation_prob REAL NOT NULL,
    reliability_score INTEGER NOT NULL,
    effective_sample_size REAL NOT NULL,
    confidence_band TEXT NOT NULL,
    PRIMARY KEY (metric_date, model_version, operator, origin, destination, day_of_week, dep_hhmm)
);

CREATE TABLE IF NOT EXISTS slot_metrics_daytype (
    metric_date DATE NOT NULL,
    model_version TEXT NOT NULL,
    operator TEXT NOT NULL,
    origin TEXT NOT NULL,
    destination TEXT NOT NULL,
    day_type TEXT NOT NULL,
    dep_hhmm TEXT NOT NULL,
    disruption_prob REAL NOT NULL,
    cancellation_prob REAL NOT NULL,
    reliability_score INTEGER NOT NULL,
    effective_sample_size REAL NOT NULL,
    confidence_band TEXT NOT NULL,
    PRIMARY KEY (metric_date, model_version, operator, origin, destination, day_type, dep_hhmm)
);

CREATE TABLE IF NOT EXISTS job_runs (
    run_id TEXT PRIMARY KEY,
    job_name TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    ended_at DATETIME,
    meta TEXT
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

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

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
