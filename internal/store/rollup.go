package store

import (
	"github.com/lox/railscore/internal/models"
)

// UpsertDailySlotAggregates recomputes daily_slot_agg rows from raw events in
// [fromDate, toDate]. Every group found in range is fully replaced, so a rerun
// over the same range yields identical rows rather than accumulating.
// Empty filter strings match everything.
func (s *Store) UpsertDailySlotAggregates(fromDate, toDate, operator, origin, destination string) error {
	// day_of_week comes from strftime('%w'), which is 0=Sunday..6=Saturday on
	// the plain service_date string. dep_hhmm is stored on the event at
	// normalization time, so grouping stays in local time.
	_, err := s.db.Exec(`
		INSERT INTO daily_slot_agg (
			service_date, operator, origin, destination, dep_hhmm, day_of_week,
			n_services, n_cancelled, n_delayed_gt5, n_disrupted
		)
		SELECT
			r.service_date,
			r.operator,
			r.origin,
			r.destination,
			r.dep_hhmm,
			CAST(strftime('%w', r.service_date) AS INTEGER),
			COUNT(*),
			SUM(CASE WHEN r.cancelled THEN 1 ELSE 0 END),
			SUM(CASE WHEN NOT r.cancelled AND r.arrival_delay_minutes IS NOT NULL AND r.arrival_delay_minutes > 5 THEN 1 ELSE 0 END),
			SUM(CASE WHEN r.cancelled OR (NOT r.cancelled AND r.arrival_delay_minutes IS NOT NULL AND r.arrival_delay_minutes > 5) THEN 1 ELSE 0 END)
		FROM raw_service_events r
		WHERE r.service_date >= ? AND r.service_date <= ?
		  AND (? = '' OR r.operator = ?)
		  AND (? = '' OR r.origin = ?)
		  AND (? = '' OR r.destination = ?)
		GROUP BY r.service_date, r.operator, r.origin, r.destination, r.dep_hhmm
		ON CONFLICT(service_date, operator, origin, destination, dep_hhmm) DO UPDATE SET
			day_of_week = excluded.day_of_week,
			n_services = excluded.n_services,
			n_cancelled = excluded.n_cancelled,
			n_delayed_gt5 = excluded.n_delayed_gt5,
			n_disrupted = excluded.n_disrupted
	`, fromDate, toDate, operator, operator, origin, origin, destination, destination)
	return err
}

// CountDailySlotAggregates counts aggregate rows for a range and filters.
// Upsert rowcounts are unreliable, so rollup jobs report before/after counts.
func (s *Store) CountDailySlotAggregates(fromDate, toDate, operator, origin, destination string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM daily_slot_agg
		WHERE service_date >= ? AND service_date <= ?
		  AND (? = '' OR operator = ?)
		  AND (? = '' OR origin = ?)
		  AND (? = '' OR destination = ?)
	`, fromDate, toDate, operator, operator, origin, origin, destination, destination).Scan(&n)
	return n, err
}

// GetDailySlotAggregates returns aggregate rows in [fromDate, toDate] ordered
// by service date, for the metrics engine's trailing window.
func (s *Store) GetDailySlotAggregates(fromDate, toDate, operator, origin, destination string) ([]models.DailySlotAggregate, error) {
	rows, err := s.db.Query(`
		SELECT service_date, operator, origin, destination, dep_hhmm, day_of_week,
		       n_services, n_cancelled, n_delayed_gt5, n_disrupted
		FROM daily_slot_agg
		WHERE service_date >= ? AND service_date <= ?
		  AND (? = '' OR operator = ?)
		  AND (? = '' OR origin = ?)
		  AND (? = '' OR destination = ?)
		ORDER BY service_date ASC
	`, fromDate, toDate, operator, operator, origin, origin, destination, destination)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggs []models.DailySlotAggregate
	for rows.Next() {
		var a models.DailySlotAggregate
		if err := rows.Scan(&a.ServiceDate, &a.Operator, &a.Origin, &a.Destination, &a.DepHHMM, &a.DayOfWeek,
			&a.NServices, &a.NCancelled, &a.NDelayedGt5, &a.NDisrupted); err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}
