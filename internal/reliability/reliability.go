// Package reliability answers "which departures around my arrival time are
// dependable": it discovers regularly scheduled departure slots from the
// rollup table, joins the latest day-type slot metrics, and falls back to a
// corridor baseline where a slot has no direct estimate.
package reliability

import (
	"errors"
	"math"
	"time"

	"github.com/lox/railscore/internal/store"
	"github.com/lox/railscore/internal/timeutil"
)

// ErrNotPrimed means no slot metrics have ever been computed; the system
// cannot answer queries until a compute run succeeds.
var ErrNotPrimed = errors.New("no slot metrics computed yet")

const (
	CoverageSlot     = "slot"
	CoverageBaseline = "baseline_fallback"

	modelVersion        = "v1_daytype"
	candidateWindowDays = 90
)

// Query is one validated reliability lookup.
type Query struct {
	Origin      string
	Destination string
	Date        time.Time // target service date
	ArriveHour  int
	ArriveMin   int
	Operator    string // optional TOC filter
	WindowMin   int    // look-back window before arrival, minutes
	MinServices int    // minimum historical services for a candidate slot
}

// Result is one departure slot with its estimate and coverage provenance.
type Result struct {
	DepartureTime       time.Time `json:"departure_time"`
	DepHHMM             string    `json:"dep_hhmm"`
	Operator            string    `json:"operator,omitempty"`
	DisruptionProb      float64   `json:"disruption_prob"`
	CancellationProb    float64   `json:"cancellation_prob"`
	ReliabilityScore    int       `json:"reliability_score"`
	EffectiveSampleSize float64   `json:"effective_sample_size"`
	ConfidenceBand      string    `json:"confidence_band"`
	Coverage            string    `json:"coverage"`
}

type Service struct {
	store *store.Store
	loc   *time.Location
	now   func() time.Time
}

func New(st *store.Store, loc *time.Location) *Service {
	return &Service{store: st, loc: loc, now: time.Now}
}

// DepartureReliability returns per-slot results ordered by departure time.
// No computed metrics at all is a hard error; no candidates in the window is
// an empty, valid result.
func (s *Service) DepartureReliability(q Query) ([]Result, error) {
	dayType := timeutil.DayTypeForDate(q.Date)

	metricDate, err := s.store.LatestDayTypeMetricDate(modelVersion)
	if err != nil {
		return nil, err
	}
	if metricDate == "" {
		return nil, ErrNotPrimed
	}

	since := s.now().In(s.loc).AddDate(0, 0, -candidateWindowDays).Format("2006-01-02")
	hhmms, err := s.store.CandidateDepartures(q.Origin, q.Destination, q.Operator, dayType, since, q.MinServices)
	if err != nil {
		return nil, err
	}

	// Keep candidates whose localized departure on the target date falls in
	// [arrive_by - window, arrive_by]. No journey-duration model: "arrive by"
	// is treated as the upper bound on departure, a known MVP simplification.
	arriveAt := time.Date(q.Date.Year(), q.Date.Month(), q.Date.Day(), q.ArriveHour, q.ArriveMin, 0, 0, s.loc)
	windowStart := arriveAt.Add(-time.Duration(q.WindowMin) * time.Minute)

	type candidate struct {
		hhmm string
		dep  time.Time
	}
	var filtered []candidate
	for _, hhmm := range hhmms {
		h, m, err := timeutil.ParseHHMM(hhmm)
		if err != nil {
			continue
		}
		dep := time.Date(q.Date.Year(), q.Date.Month(), q.Date.Day(), h, m, 0, 0, s.loc)
		if !dep.Before(windowStart) && !dep.After(arriveAt) {
			filtered = append(filtered, candidate{hhmm: hhmm, dep: dep})
		}
	}

	out := make([]Result, 0, len(filtered))
	if len(filtered) == 0 {
		return out, nil
	}

	rows, err := s.store.GetDayTypeMetrics(metricDate, modelVersion, q.Origin, q.Destination, dayType, q.Operator)
	if err != nil {
		return nil, err
	}

	byHHMM := make(map[string]int, len(rows))
	var sumDisruption, sumCancel float64
	for i, r := range rows {
		byHHMM[r.DepHHMM] = i
		sumDisruption += r.DisruptionProb
		sumCancel += r.CancellationProb
	}

	// Baseline: unweighted average across all metric rows for the corridor,
	// day type and operator filter at this metric date.
	var baselineDisruption, baselineCancel float64
	if len(rows) > 0 {
		baselineDisruption = sumDisruption / float64(len(rows))
		baselineCancel = sumCancel / float64(len(rows))
	}
	baselineScore := int(math.Round(100.0 * (1.0 - baselineDisruption)))

	for _, c := range filtered {
		if i, ok := byHHMM[c.hhmm]; ok {
			r := rows[i]
			out = append(out, Result{
				DepartureTime:       c.dep,
				DepHHMM:             c.hhmm,
				Operator:            r.Operator,
				DisruptionProb:      r.DisruptionProb,
				CancellationProb:    r.CancellationProb,
				ReliabilityScore:    r.ReliabilityScore,
				EffectiveSampleSize: r.EffectiveSampleSize,
				ConfidenceBand:      r.ConfidenceBand,
				Coverage:            CoverageSlot,
			})
			continue
		}
		out = append(out, Result{
			DepartureTime:       c.dep,
			DepHHMM:             c.hhmm,
			Operator:            q.Operator,
			DisruptionProb:      baselineDisruption,
			CancellationProb:    baselineCancel,
			ReliabilityScore:    baselineScore,
			EffectiveSampleSize: 0,
			ConfidenceBand:      "low",
			Coverage:            CoverageBaseline,
		})
	}
	return out, nil
}
