package models

import (
	"database/sql"
	"time"
)

// CanonicalServiceEvent is one scheduled train service observed at a corridor.
// Events are immutable once loaded: re-ingesting the same service resolves to
// the same ServiceKey and is a no-op.
type CanonicalServiceEvent struct {
	ID            int64
	Source        string         // feed source name, e.g. "hsp"
	SourceEventID sql.NullString // provider identifier (HSP RID)

	ServiceDate string // "YYYY-MM-DD"
	Operator    string // TOC code, e.g. "GW"
	Origin      string // CRS code
	Destination string // CRS code

	ScheduledDeparture time.Time // zoned, Europe/London
	ScheduledArrival   sql.NullTime
	ActualArrival      sql.NullTime

	Cancelled       bool
	ArrivalDelayMin sql.NullInt64

	// DepHHMM is the local scheduled departure time-of-day ("0810"), computed
	// at normalization time so rollup grouping stays in local time.
	DepHHMM string

	// ServiceKey is the deterministic content hash used for deduplication.
	ServiceKey string

	SourceRunID string
	CreatedAt   time.Time
}

// DailySlotAggregate holds counts for one (service_date, operator, origin,
// destination, dep_hhmm) combination. n_disrupted = n_cancelled + n_delayed_gt5
// by construction.
type DailySlotAggregate struct {
	ServiceDate string
	Operator    string
	Origin      string
	Destination string
	DepHHMM     string
	DayOfWeek   int // 0=Sunday..6=Saturday
	NServices   int
	NCancelled  int
	NDelayedGt5 int
	NDisrupted  int
}

// SlotMetric is a smoothed estimate keyed by calendar day-of-week.
type SlotMetric struct {
	MetricDate   string // "YYYY-MM-DD"
	ModelVersion string
	Operator     string
	Origin       string
	Destination  string
	DayOfWeek    int // 0=Sunday..6=Saturday
	DepHHMM      string

	DisruptionProb      float64
	CancellationProb    float64
	ReliabilityScore    int // 0..100
	EffectiveSampleSize float64
	ConfidenceBand      string // "low", "medium", "high"
}

// SlotMetricDayType is a smoothed estimate keyed by day type
// (WEEKDAY/SATURDAY/SUNDAY) instead of individual day-of-week.
type SlotMetricDayType struct {
	MetricDate   string
	ModelVersion string
	Operator     string
	Origin       string
	Destination  string
	DayType      string
	DepHHMM      string

	DisruptionProb      float64
	CancellationProb    float64
	ReliabilityScore    int
	EffectiveSampleSize float64
	ConfidenceBand      string
}

// JobRun records one ingestion or compute run for auditing.
type JobRun struct {
	RunID     string // uuid
	JobName   string
	Status    string // "running", "success", "fail"
	StartedAt time.Time
	EndedAt   sql.NullTime
	Meta      string // JSON-encoded job summary
}
