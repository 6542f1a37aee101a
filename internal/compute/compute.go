// Package compute is the metrics engine: it turns daily slot aggregates in a
// trailing window into recency-weighted, operator-prior-smoothed slot metrics,
// in two parallel views (calendar day-of-week and day type).
package compute

import (
	"log"
	"time"

	"github.com/lox/railscore/internal/metrics"
	"github.com/lox/railscore/internal/models"
	"github.com/lox/railscore/internal/scoring"
	"github.com/lox/railscore/internal/store"
	"github.com/lox/railscore/internal/timeutil"
)

const (
	ModelVersionDOW     = "v1"
	ModelVersionDayType = "v1_daytype"
)

// Params configures one metrics run. The window is
// [MetricDate - WindowDays, MetricDate - 1].
type Params struct {
	MetricDate    time.Time
	WindowDays    int
	HalfLifeDays  float64
	PriorStrength float64
	Operator      string
	Origin        string
	Destination   string
}

// Args is the ledger form of Params.
type Args struct {
	MetricDate    string  `json:"metric_date"`
	ModelVersion  string  `json:"model_version"`
	WindowDays    int     `json:"window_days"`
	HalfLifeDays  float64 `json:"half_life_days"`
	PriorStrength float64 `json:"prior_strength"`
	Operator      string  `json:"operator,omitempty"`
	Origin        string  `json:"origin,omitempty"`
	Destination   string  `json:"destination,omitempty"`
}

// Result summarizes one metrics run for the job ledger.
type Result struct {
	Args
	SlotsWritten  int    `json:"slots_written"`
	OperatorsSeen int    `json:"operators_seen"`
	Note          string `json:"note,omitempty"`
}

func (p Params) args(modelVersion string) Args {
	return Args{
		MetricDate:    p.MetricDate.Format("2006-01-02"),
		ModelVersion:  modelVersion,
		WindowDays:    p.WindowDays,
		HalfLifeDays:  p.HalfLifeDays,
		PriorStrength: p.PriorStrength,
		Operator:      p.Operator,
		Origin:        p.Origin,
		Destination:   p.Destination,
	}
}

// aggRow pairs a daily aggregate with its parsed service date so the decay
// weighting never reparses.
type aggRow struct {
	models.DailySlotAggregate
	date time.Time
}

func loadWindow(st *store.Store, p Params) ([]aggRow, error) {
	fromDate := p.MetricDate.AddDate(0, 0, -p.WindowDays).Format("2006-01-02")
	toDate := p.MetricDate.AddDate(0, 0, -1).Format("2006-01-02")

	aggs, err := st.GetDailySlotAggregates(fromDate, toDate, p.Operator, p.Origin, p.Destination)
	if err != nil {
		return nil, err
	}

	rows := make([]aggRow, 0, len(aggs))
	for _, a := range aggs {
		d, err := timeutil.ParseServiceDate(a.ServiceDate)
		if err != nil {
			return nil, err
		}
		rows = append(rows, aggRow{DailySlotAggregate: a, date: d})
	}
	return rows, nil
}

func dailyRows(rows []aggRow) []scoring.DailyRow {
	out := make([]scoring.DailyRow, len(rows))
	for i, r := range rows {
		out[i] = scoring.DailyRow{
			ServiceDate: r.date,
			NServices:   r.NServices,
			NCancelled:  r.NCancelled,
			NDisrupted:  r.NDisrupted,
		}
	}
	return out
}

// operatorPriors computes each operator's baseline weighted disruption and
// cancellation rates across all its slots in the window.
func operatorPriors(metricDate time.Time, rows []aggRow, halfLife float64) (map[string]float64, map[string]float64) {
	byOperator := make(map[string][]aggRow)
	for _, r := range rows {
		byOperator[r.Operator] = append(byOperator[r.Operator], r)
	}

	priorDisruption := make(map[string]float64, len(byOperator))
	priorCancel := make(map[string]float64, len(byOperator))
	for op, opRows := range byOperator {
		wc := scoring.AccumulateWeightedCounts(metricDate, dailyRows(opRows), halfLife)
		if wc.WServices > 0 {
			priorDisruption[op] = wc.WDisrupted / wc.WServices
			priorCancel[op] = wc.WCancelled / wc.WServices
		} else {
			priorDisruption[op] = 0
			priorCancel[op] = 0
		}
	}
	return priorDisruption, priorCancel
}

// slotKey is the composite grouping key for one slot. Group holds either the
// day-of-week digit or the day type, depending on the model variant.
type slotKey struct {
	Operator    string
	Origin      string
	Destination string
	Group       string
	DepHHMM     string
}

func groupSlots(rows []aggRow, group func(aggRow) string) map[slotKey][]aggRow {
	slots := make(map[slotKey][]aggRow)
	for _, r := range rows {
		key := slotKey{
			Operator:    r.Operator,
			Origin:      r.Origin,
			Destination: r.Destination,
			Group:       group(r),
			DepHHMM:     r.DepHHMM,
		}
		slots[key] = append(slots[key], r)
	}
	return slots
}

// run executes the shared engine skeleton for one model variant: job ledger
// start, window load, priors, per-slot smoothing via the variant's write
// function, ledger finish. A window with zero rows still succeeds, writing
// nothing and noting it in the summary.
func run(st *store.Store, p Params, modelVersion string,
	write func(p Params, rows []aggRow, priorD, priorC map[string]float64) (slots int, operators int, err error)) (Result, error) {

	result := Result{Args: p.args(modelVersion)}

	runID, err := st.StartJob("compute_slot_metrics_"+modelVersion, result.Args)
	if err != nil {
		return result, err
	}

	rows, err := loadWindow(st, p)
	if err != nil {
		st.FinishJobFail(runID, err)
		return result, err
	}

	if len(rows) == 0 {
		result.Note = "no rows in window"
		if err := st.FinishJobSuccess(runID, result); err != nil {
			return result, err
		}
		log.Printf("compute: %s metric_date=%s no rows in window", modelVersion, result.MetricDate)
		return result, nil
	}

	priorD, priorC := operatorPriors(p.MetricDate, rows, p.HalfLifeDays)

	slots, operators, err := write(p, rows, priorD, priorC)
	if err != nil {
		st.FinishJobFail(runID, err)
		return result, err
	}

	result.SlotsWritten = slots
	result.OperatorsSeen = operators
	metrics.MetricRowsWritten.WithLabelValues(modelVersion).Add(float64(slots))

	if err := st.FinishJobSuccess(runID, result); err != nil {
		return result, err
	}

	log.Printf("compute: %s metric_date=%s slots_written=%d operators=%d", modelVersion, result.MetricDate, slots, operators)
	return result, nil
}
