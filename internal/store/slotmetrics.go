package store

import (
	"database/sql"
	"fmt"

	"github.com/lox/railscore/internal/models"
)

// metricBatchSize bounds transaction size during metric upserts.
const metricBatchSize = 500

// UpsertSlotMetrics writes day-of-week model rows, one per slot, replacing any
// existing row for the same key. Commits are batched; writes in an uncommitted
// batch roll back on error.
func (s *Store) UpsertSlotMetrics(rows []models.SlotMetric) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	for i, m := range rows {
		_, err := tx.Exec(`
			INSERT INTO slot_metrics (
				metric_date, model_version, operator, origin, destination, day_of_week, dep_hhmm,
				disruption_prob, cancellation_prob, reliability_score, effective_sample_size, confidence_band
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(metric_date, model_version, operator, origin, destination, day_of_week, dep_hhmm) DO UPDATE SET
				disruption_prob = excluded.disruption_prob,
				cancellation_prob = excluded.cancellation_prob,
				reliability_score = excluded.reliability_score,
				effective_sample_size = excluded.effective_sample_size,
				confidence_band = excluded.confidence_band
		`, m.MetricDate, m.ModelVersion, m.Operator, m.Origin, m.Destination, m.DayOfWeek, m.DepHHMM,
			m.DisruptionProb, m.CancellationProb, m.ReliabilityScore, m.EffectiveSampleSize, m.ConfidenceBand)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert slot metric: %w", err)
		}

		if (i+1)%metricBatchSize == 0 {
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			tx, err = s.db.Begin()
			if err != nil {
				return fmt.Errorf("begin tx: %w", err)
			}
		}
	}

	return tx.Commit()
}

// UpsertSlotMetricsDayType writes day-type model rows, same contract as
// UpsertSlotMetrics.
func (s *Store) UpsertSlotMetricsDayType(rows []models.SlotMetricDayType) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	for i, m := range rows {
		_, err := tx.Exec(`
			INSERT INTO slot_metrics_daytype (
				metric_date, model_version, operator, origin, destination, day_type, dep_hhmm,
				disruption_prob, cancellation_prob, reliability_score, effective_sample_size, confidence_band
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(metric_date, model_version, operator, origin, destination, day_type, dep_hhmm) DO UPDATE SET
				disruption_prob = excluded.disruption_prob,
				cancellation_prob = excluded.cancellation_prob,
				reliability_score = excluded.reliability_score,
				effective_sample_size = excluded.effective_sample_size,
				confidence_band = excluded.confidence_band
		`, m.MetricDate, m.ModelVersion, m.Operator, m.Origin, m.Destination, m.DayType, m.DepHHMM,
			m.DisruptionProb, m.CancellationProb, m.ReliabilityScore, m.EffectiveSampleSize, m.ConfidenceBand)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert slot metric daytype: %w", err)
		}

		if (i+1)%metricBatchSize == 0 {
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			tx, err = s.db.Begin()
			if err != nil {
				return fmt.Errorf("begin tx: %w", err)
			}
		}
	}

	return tx.Commit()
}

// LatestDayTypeMetricDate returns the most recent metric_date computed with
// the day-type model, or "" when no metrics exist yet.
func (s *Store) LatestDayTypeMetricDate(modelVersion string) (string, error) {
	var d sql.NullString
	err := s.db.QueryRow(`
		SELECT MAX(metric_date) FROM slot_metrics_daytype WHERE model_version = ?
	`, modelVersion).Scan(&d)
	if err != nil {
		return "", err
	}
	if !d.Valid {
		return "", nil
	}
	return d.String, nil
}

// GetDayTypeMetrics returns all day-type metric rows for a corridor and day
// type at one metric date. Callers index by dep_hhmm and use the full set for
// baseline averaging.
func (s *Store) GetDayTypeMetrics(metricDate, modelVersion, origin, destination, dayType, operator string) ([]models.SlotMetricDayType, error) {
	rows, err := s.db.Query(`
		SELECT metric_date, model_version, operator, origin, destination, day_type, dep_hhmm,
		       disruption_prob, cancellation_prob, reliability_score, effective_sample_size, confidence_band
		FROM slot_metrics_daytype
		WHERE metric_date = ? AND model_version = ?
		  AND origin = ? AND destination = ? AND day_type = ?
		  AND (? = '' OR operator = ?)
	`, metricDate, modelVersion, origin, destination, dayType, operator, operator)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SlotMetricDayType
	for rows.Next() {
		var m models.SlotMetricDayType
		if err := rows.Scan(&m.MetricDate, &m.ModelVersion, &m.Operator, &m.Origin, &m.Destination, &m.DayType, &m.DepHHMM,
			&m.DisruptionProb, &m.CancellationProb, &m.ReliabilityScore, &m.EffectiveSampleSize, &m.ConfidenceBand); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CandidateDepartures lists departure times-of-day regularly scheduled on a
// corridor for the given day type: distinct dep_hhmm over rollup rows since
// the cutoff date whose summed service counts meet the threshold.
func (s *Store) CandidateDepartures(origin, destination, operator, dayType, sinceDate string, minServices int) ([]string, error) {
	dowFilter := "day_of_week BETWEEN 1 AND 5"
	switch dayType {
	case "SATURDAY":
		dowFilter = "day_of_week = 6"
	case "SUNDAY":
		dowFilter = "day_of_week = 0"
	}

	rows, err := s.db.Query(`
		SELECT dep_hhmm
		FROM daily_slot_agg
		WHERE origin = ? AND destination = ?
		  AND service_date >= ?
		  AND `+dowFilter+`
		  AND (? = '' OR operator = ?)
		GROUP BY dep_hhmm
		HAVING SUM(n_services) >= ?
		ORDER BY dep_hhmm
	`, origin, destination, sinceDate, operator, operator, minServices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hhmms []string
	for rows.Next() {
		var hhmm string
		if err := rows.Scan(&hhmm); err != nil {
			return nil, err
		}
		hhmms = append(hhmms, hhmm)
	}
	return hhmms, rows.Err()
}
