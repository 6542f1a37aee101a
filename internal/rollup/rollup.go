// Package rollup recomputes daily per-slot counts from raw service events.
package rollup

import (
	"log"

	"github.com/lox/railscore/internal/metrics"
	"github.com/lox/railscore/internal/store"
)

// Args are the rollup job parameters, recorded in the job ledger.
type Args struct {
	FromDate    string `json:"from_date"`
	ToDate      string `json:"to_date"`
	Operator    string `json:"operator,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// Result summarizes one rollup run. Upsert rowcounts are unreliable across
// drivers, so rows are counted before and after instead.
type Result struct {
	Args
	RowsBefore int `json:"rows_before"`
	RowsAfter  int `json:"rows_after"`
	RowsNetNew int `json:"rows_net_new"`
}

// Run recomputes daily_slot_agg for the range and filters. The operation is a
// full replace per group, so reruns over the same range are idempotent. The
// run is wrapped in a job ledger record; failures roll back uncommitted
// writes, are recorded, and propagate.
func Run(st *store.Store, args Args) (Result, error) {
	result := Result{Args: args}

	runID, err := st.StartJob("rollup_daily_slot_agg", args)
	if err != nil {
		return result, err
	}

	before, err := st.CountDailySlotAggregates(args.FromDate, args.ToDate, args.Operator, args.Origin, args.Destination)
	if err != nil {
		st.FinishJobFail(runID, err)
		return result, err
	}

	if err := st.UpsertDailySlotAggregates(args.FromDate, args.ToDate, args.Operator, args.Origin, args.Destination); err != nil {
		st.FinishJobFail(runID, err)
		return result, err
	}

	after, err := st.CountDailySlotAggregates(args.FromDate, args.ToDate, args.Operator, args.Origin, args.Destination)
	if err != nil {
		st.FinishJobFail(runID, err)
		return result, err
	}

	result.RowsBefore = before
	result.RowsAfter = after
	if after > before {
		result.RowsNetNew = after - before
	}
	metrics.AggregateRows.Set(float64(after))

	if err := st.FinishJobSuccess(runID, result); err != nil {
		return result, err
	}

	log.Printf("rollup: %s..%s rows_before=%d rows_after=%d", args.FromDate, args.ToDate, before, after)
	return result, nil
}
