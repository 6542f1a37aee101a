package hsp

import (
	"context"
	"log"
	"time"

	"github.com/lox/railscore/internal/ingest"
	"github.com/lox/railscore/internal/metrics"
	"github.com/lox/railscore/internal/models"
	"github.com/lox/railscore/internal/store"
)

// Source is the HSP feed adapter. One run is strictly sequential: chunked
// /serviceMetrics discovery, then one /serviceDetails request per RID with a
// politeness delay between requests.
type Source struct {
	cfg    Config
	client *Client
	loc    *time.Location
	sleep  func(time.Duration) // injectable for tests
}

func NewSource(cfg Config, loc *time.Location) *Source {
	return &Source{
		cfg:    cfg,
		client: NewClient(cfg),
		loc:    loc,
		sleep:  time.Sleep,
	}
}

func (s *Source) Name() string { return "hsp" }

func (s *Source) Ingest(ctx context.Context, st *store.Store, runID string, params ingest.Params) (ingest.Result, error) {
	result := ingest.Result{Source: s.Name()}

	log.Printf("hsp: ingest start run=%s %s->%s dates=%s..%s times=%s..%s days=%s toc_filter=%v",
		runID, params.FromLoc, params.ToLoc, params.FromDate, params.ToDate,
		params.FromTime, params.ToTime, params.Days, params.TocFilter)

	chunks, err := PlanChunks(params.FromDate, params.ToDate, params.FromTime, params.ToTime,
		s.cfg.WindowMinutes, params.Days, s.cfg.FilterWeekdays)
	if err != nil {
		return result, err
	}

	log.Printf("hsp: fetching serviceMetrics in %d chunks (window=%dm)", len(chunks), s.cfg.WindowMinutes)

	var services []ServiceMetricsEntry
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		log.Printf("hsp: serviceMetrics chunk %d/%d date=%s %s-%s", i+1, len(chunks), chunk.Date, chunk.FromTime, chunk.ToTime)
		entries, err := s.client.FetchServiceMetrics(params.FromLoc, params.ToLoc, params.Days, chunk, params.TocFilter)
		if err != nil {
			return result, err
		}
		services = append(services, entries...)
	}

	rids, templates := ExtractRIDsAndTemplates(services)
	result.RIDsTotal = len(rids)
	log.Printf("hsp: serviceMetrics produced %d unique RIDs (from %d merged entries)", len(rids), len(services))

	var events []models.CanonicalServiceEvent
	for idx, rid := range rids {
		if s.cfg.MaxDetails > 0 && idx >= s.cfg.MaxDetails {
			log.Printf("hsp: stopping early at max_details=%d (processed %d/%d)", s.cfg.MaxDetails, idx, len(rids))
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if s.cfg.ProgressEvery > 0 && (idx == 0 || (idx+1)%s.cfg.ProgressEvery == 0 || idx+1 == len(rids)) {
			log.Printf("hsp: serviceDetails progress %d/%d (fetched=%d failed=%d skipped=%d)",
				idx+1, len(rids), result.DetailsFetched, result.DetailsFailed, result.InvalidSkipped)
		}

		if s.cfg.Delay > 0 {
			s.sleep(s.cfg.Delay)
		}

		details, err := s.client.FetchServiceDetails(rid)
		if err != nil {
			result.DetailsFailed++
			log.Printf("hsp: rid %s failed: %v", rid, err)
			continue
		}

		ev, skip, err := EventFromDetails(rid, details, params.FromLoc, params.ToLoc, templates[rid], s.loc)
		if err != nil {
			result.DetailsFailed++
			log.Printf("hsp: rid %s failed: %v", rid, err)
			continue
		}
		if skip != "" {
			result.InvalidSkipped++
			metrics.EventsSkipped.WithLabelValues(s.Name(), skip).Inc()
			continue
		}

		events = append(events, *ev)
		result.DetailsFetched++
	}

	log.Printf("hsp: loading %d events", len(events))
	stats, err := st.InsertEvents(events, runID)
	if err != nil {
		return result, err
	}
	result.LoadStats = stats
	metrics.EventsIngested.WithLabelValues(s.Name()).Add(float64(stats.Inserted))

	log.Printf("hsp: ingest done run=%s total=%d inserted=%d skipped=%d", runID, stats.Total, stats.Inserted, stats.Skipped)
	return result, nil
}
