// Package jobs runs the daily batch work in serve mode: roll up recent raw
// events and recompute both slot metric models once per local day. Manual and
// backfill runs use the CLI subcommands instead.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/lox/railscore/internal/compute"
	"github.com/lox/railscore/internal/rollup"
	"github.com/lox/railscore/internal/store"
)

// rollupLookbackDays covers late-arriving ingests when re-rolling recent days.
const rollupLookbackDays = 7

type Scheduler struct {
	store         *store.Store
	loc           *time.Location
	checkInterval time.Duration
	windowDays    int
	halfLifeDays  float64
	priorStrength float64
	lastRunDate   string
}

func NewScheduler(st *store.Store, loc *time.Location) *Scheduler {
	return &Scheduler{
		store:         st,
		loc:           loc,
		checkInterval: time.Hour,
		windowDays:    90,
		halfLifeDays:  30.0,
		priorStrength: 50.0,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.runDailyIfNeeded()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("jobs: shutting down")
			return
		case <-ticker.C:
			s.runDailyIfNeeded()
		}
	}
}

func (s *Scheduler) runDailyIfNeeded() {
	today := time.Now().In(s.loc)
	date := today.Format("2006-01-02")
	if s.lastRunDate == date {
		return
	}

	log.Printf("jobs: running daily jobs for %s", date)

	_, err := rollup.Run(s.store, rollup.Args{
		FromDate: today.AddDate(0, 0, -rollupLookbackDays).Format("2006-01-02"),
		ToDate:   date,
	})
	if err != nil {
		log.Printf("jobs: rollup error: %v", err)
		return
	}

	params := compute.Params{
		MetricDate:    today,
		WindowDays:    s.windowDays,
		HalfLifeDays:  s.halfLifeDays,
		PriorStrength: s.priorStrength,
	}
	if _, err := compute.SlotMetrics(s.store, params); err != nil {
		log.Printf("jobs: compute slot metrics error: %v", err)
		return
	}
	if _, err := compute.SlotMetricsDayType(s.store, params); err != nil {
		log.Printf("jobs: compute day-type metrics error: %v", err)
		return
	}

	s.lastRunDate = date
}
