package store

import (
	"fmt"

	"github.com/lox/railscore/internal/models"
)

// insertBatchSize bounds transaction size during bulk event loads.
const insertBatchSize = 1000

// LoadStats summarizes one event load.
type LoadStats struct {
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// InsertEvents loads canonical events idempotently, keyed by service_key.
// Duplicate keys are absorbed silently and counted as skips; commits happen in
// batches with a final flush for the remainder.
func (s *Store) InsertEvents(events []models.CanonicalServiceEvent, runID string) (LoadStats, error) {
	stats := LoadStats{Total: len(events)}

	tx, err := s.db.Begin()
	if err != nil {
		return stats, fmt.Errorf("begin tx: %w", err)
	}

	for i, ev := range events {
		res, err := tx.Exec(`
			INSERT INTO raw_service_events (
				source, source_event_id, service_date, operator, origin, destination,
				scheduled_departure_ts, scheduled_arrival_ts, actual_arrival_ts,
				cancelled, arrival_delay_minutes, dep_hhmm, service_key, source_run_id
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(service_key) DO NOTHING
		`, ev.Source, ev.SourceEventID, ev.ServiceDate, ev.Operator, ev.Origin, ev.Destination,
			ev.ScheduledDeparture, ev.ScheduledArrival, ev.ActualArrival,
			ev.Cancelled, ev.ArrivalDelayMin, ev.DepHHMM, ev.ServiceKey, runID)
		if err != nil {
			tx.Rollback()
			return stats, fmt.Errorf("insert event %s: %w", ev.ServiceKey, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			tx.Rollback()
			return stats, fmt.Errorf("rows affected: %w", err)
		}
		if n > 0 {
			stats.Inserted++
		} else {
			stats.Skipped++
		}

		if (i+1)%insertBatchSize == 0 {
			if err := tx.Commit(); err != nil {
				return stats, fmt.Errorf("commit batch: %w", err)
			}
			tx, err = s.db.Begin()
			if err != nil {
				return stats, fmt.Errorf("begin tx: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}

// CountEvents returns the number of stored events for a date range.
func (s *Store) CountEvents(fromDate, toDate string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM raw_service_events
		WHERE service_date >= ? AND service_date <= ?
	`, fromDate, toDate).Scan(&n)
	return n, err
}
