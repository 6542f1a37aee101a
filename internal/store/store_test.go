package store

import (
	"database/sql"
	"reflect"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/railscore/internal/models"
	"github.com/lox/railscore/internal/timeutil"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	store := New(db, loc)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

// testEvent builds a canonical event for one service. delayMin < -1000 means
// cancelled (no actual arrival).
func testEvent(t *testing.T, st *Store, date, hhmm, operator string, delayMin int) models.CanonicalServiceEvent {
	t.Helper()
	d, err := timeutil.ParseServiceDate(date)
	if err != nil {
		t.Fatalf("parse date %q: %v", date, err)
	}
	dep, err := timeutil.HHMMToTime(d, hhmm, st.Location())
	if err != nil {
		t.Fatalf("parse hhmm %q: %v", hhmm, err)
	}

	ev := models.CanonicalServiceEvent{
		Source:             "hsp",
		ServiceDate:        date,
		Operator:           operator,
		Origin:             "RDG",
		Destination:        "PAD",
		ScheduledDeparture: dep,
		DepHHMM:            hhmm,
		ServiceKey:         date + "|" + hhmm + "|" + operator,
	}
	if delayMin < -1000 {
		ev.Cancelled = true
	} else {
		ev.ArrivalDelayMin = sql.NullInt64{Int64: int64(delayMin), Valid: true}
	}
	return ev
}

func TestInsertEventsIdempotent(t *testing.T) {
	st := setupTestStore(t)
	events := []models.CanonicalServiceEvent{
		testEvent(t, st, "2025-06-02", "0810", "GW", 0),
		testEvent(t, st, "2025-06-02", "0840", "GW", 12),
	}

	stats, err := st.InsertEvents(events, "run1")
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if stats.Total != 2 || stats.Inserted != 2 || stats.Skipped != 0 {
		t.Errorf("first load stats = %+v, want 2/2/0", stats)
	}

	stats, err = st.InsertEvents(events, "run2")
	if err != nil {
		t.Fatalf("InsertEvents rerun: %v", err)
	}
	if stats.Total != 2 || stats.Inserted != 0 || stats.Skipped != 2 {
		t.Errorf("second load stats = %+v, want 2/0/2", stats)
	}

	n, err := st.CountEvents("2025-06-02", "2025-06-02")
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 2 {
		t.Errorf("CountEvents = %d, want 2", n)
	}
}

func TestRollupCounts(t *testing.T) {
	st := setupTestStore(t)
	// 2025-06-02 is a Monday. One slot, four services: one on time, one
	// borderline (exactly 5 min is not disrupted), one late, one cancelled.
	events := []models.CanonicalServiceEvent{
		testEvent(t, st, "2025-06-02", "0810", "GW", 0),
		testEvent(t, st, "2025-06-02", "0810", "XR", 5),
		testEvent(t, st, "2025-06-02", "0810", "SN", 6),
		testEvent(t, st, "2025-06-02", "0810", "SE", -9999),
	}
	// Same operator so all four land in one slot; keys stay distinct.
	for i := range events {
		events[i].Operator = "GW"
	}

	if _, err := st.InsertEvents(events, "run1"); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if err := st.UpsertDailySlotAggregates("2025-06-02", "2025-06-02", "", "", ""); err != nil {
		t.Fatalf("UpsertDailySlotAggregates: %v", err)
	}

	aggs, err := st.GetDailySlotAggregates("2025-06-02", "2025-06-02", "", "", "")
	if err != nil {
		t.Fatalf("GetDailySlotAggregates: %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("len(aggs) = %d, want 1", len(aggs))
	}

	a := aggs[0]
	if a.DayOfWeek != 1 {
		t.Errorf("DayOfWeek = %d, want 1 (Monday)", a.DayOfWeek)
	}
	if a.NServices != 4 {
		t.Errorf("NServices = %d, want 4", a.NServices)
	}
	if a.NCancelled != 1 {
		t.Errorf("NCancelled = %d, want 1", a.NCancelled)
	}
	if a.NDelayedGt5 != 1 {
		t.Errorf("NDelayedGt5 = %d, want 1 (5 min is not >5)", a.NDelayedGt5)
	}
	if a.NDisrupted != 2 {
		t.Errorf("NDisrupted = %d, want cancelled+delayed = 2", a.NDisrupted)
	}
}

func TestRollupIdempotent(t *testing.T) {
	st := setupTestStore(t)
	events := []models.CanonicalServiceEvent{
		testEvent(t, st, "2025-06-02", "0810", "GW", 0),
		testEvent(t, st, "2025-06-02", "0840", "GW", 12),
		testEvent(t, st, "2025-06-03", "0810", "GW", -9999),
	}
	if _, err := st.InsertEvents(events, "run1"); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	if err := st.UpsertDailySlotAggregates("2025-06-01", "2025-06-30", "", "", ""); err != nil {
		t.Fatalf("rollup: %v", err)
	}
	first, err := st.GetDailySlotAggregates("2025-06-01", "2025-06-30", "", "", "")
	if err != nil {
		t.Fatalf("GetDailySlotAggregates: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("len(aggs) = %d, want 3", len(first))
	}

	if err := st.UpsertDailySlotAggregates("2025-06-01", "2025-06-30", "", "", ""); err != nil {
		t.Fatalf("rollup rerun: %v", err)
	}
	second, err := st.GetDailySlotAggregates("2025-06-01", "2025-06-30", "", "", "")
	if err != nil {
		t.Fatalf("GetDailySlotAggregates rerun: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("rerun changed aggregates:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestRollupReplacesOnNewEvents(t *testing.T) {
	st := setupTestStore(t)
	ev1 := testEvent(t, st, "2025-06-02", "0810", "GW", 0)
	if _, err := st.InsertEvents([]models.CanonicalServiceEvent{ev1}, "run1"); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertDailySlotAggregates("2025-06-02", "2025-06-02", "", "", ""); err != nil {
		t.Fatal(err)
	}

	ev2 := testEvent(t, st, "2025-06-02", "0810", "GW", 20)
	ev2.ServiceKey = ev2.ServiceKey + "-late"
	if _, err := st.InsertEvents([]models.CanonicalServiceEvent{ev2}, "run2"); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertDailySlotAggregates("2025-06-02", "2025-06-02", "", "", ""); err != nil {
		t.Fatal(err)
	}

	aggs, err := st.GetDailySlotAggregates("2025-06-02", "2025-06-02", "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(aggs) != 1 {
		t.Fatalf("len(aggs) = %d, want 1", len(aggs))
	}
	if aggs[0].NServices != 2 {
		t.Errorf("NServices = %d, want 2 (replaced, not accumulated)", aggs[0].NServices)
	}
	if aggs[0].NDisrupted != 1 {
		t.Errorf("NDisrupted = %d, want 1", aggs[0].NDisrupted)
	}
}

func TestRollupOperatorFilter(t *testing.T) {
	st := setupTestStore(t)
	events := []models.CanonicalServiceEvent{
		testEvent(t, st, "2025-06-02", "0810", "GW", 0),
		testEvent(t, st, "2025-06-02", "0815", "XR", 0),
	}
	if _, err := st.InsertEvents(events, "run1"); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertDailySlotAggregates("2025-06-02", "2025-06-02", "GW", "", ""); err != nil {
		t.Fatal(err)
	}

	all, err := st.GetDailySlotAggregates("2025-06-02", "2025-06-02", "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Operator != "GW" {
		t.Errorf("aggs = %+v, want only the GW slot", all)
	}
}

func TestCandidateDepartures(t *testing.T) {
	st := setupTestStore(t)
	var events []models.CanonicalServiceEvent
	// 0810 runs Mon and Tue; 0840 runs Mon only; 0900 runs Saturday.
	events = append(events, testEvent(t, st, "2025-06-02", "0810", "GW", 0))
	events = append(events, testEvent(t, st, "2025-06-03", "0810", "GW", 0))
	events = append(events, testEvent(t, st, "2025-06-02", "0840", "GW", 0))
	events = append(events, testEvent(t, st, "2025-06-07", "0900", "GW", 0))
	if _, err := st.InsertEvents(events, "run1"); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertDailySlotAggregates("2025-06-01", "2025-06-30", "", "", ""); err != nil {
		t.Fatal(err)
	}

	got, err := st.CandidateDepartures("RDG", "PAD", "", "WEEKDAY", "2025-06-01", 2)
	if err != nil {
		t.Fatalf("CandidateDepartures: %v", err)
	}
	if want := []string{"0810"}; !reflect.DeepEqual(got, want) {
		t.Errorf("weekday candidates (min 2) = %v, want %v", got, want)
	}

	got, err = st.CandidateDepartures("RDG", "PAD", "", "WEEKDAY", "2025-06-01", 1)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"0810", "0840"}; !reflect.DeepEqual(got, want) {
		t.Errorf("weekday candidates (min 1) = %v, want %v", got, want)
	}

	got, err = st.CandidateDepartures("RDG", "PAD", "", "SATURDAY", "2025-06-01", 1)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"0900"}; !reflect.DeepEqual(got, want) {
		t.Errorf("saturday candidates = %v, want %v", got, want)
	}

	got, err = st.CandidateDepartures("RDG", "PAD", "", "WEEKDAY", "2025-06-04", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("candidates with cutoff after all data = %v, want none", got)
	}
}

func TestSlotMetricsDayTypeRoundTrip(t *testing.T) {
	st := setupTestStore(t)

	date, err := st.LatestDayTypeMetricDate("v1_daytype")
	if err != nil {
		t.Fatalf("LatestDayTypeMetricDate: %v", err)
	}
	if date != "" {
		t.Errorf("latest metric date on empty table = %q, want empty", date)
	}

	rows := []models.SlotMetricDayType{
		{
			MetricDate: "2025-06-30", ModelVersion: "v1_daytype",
			Operator: "GW", Origin: "RDG", Destination: "PAD",
			DayType: "WEEKDAY", DepHHMM: "0810",
			DisruptionProb: 0.05, CancellationProb: 0.01,
			ReliabilityScore: 95, EffectiveSampleSize: 42.5, ConfidenceBand: "high",
		},
		{
			MetricDate: "2025-06-30", ModelVersion: "v1_daytype",
			Operator: "GW", Origin: "RDG", Destination: "PAD",
			DayType: "WEEKDAY", DepHHMM: "0840",
			DisruptionProb: 0.12, CancellationProb: 0.03,
			ReliabilityScore: 88, EffectiveSampleSize: 6.0, ConfidenceBand: "low",
		},
	}
	if err := st.UpsertSlotMetricsDayType(rows); err != nil {
		t.Fatalf("UpsertSlotMetricsDayType: %v", err)
	}

	date, err = st.LatestDayTypeMetricDate("v1_daytype")
	if err != nil {
		t.Fatal(err)
	}
	if date != "2025-06-30" {
		t.Errorf("latest metric date = %q, want 2025-06-30", date)
	}

	got, err := st.GetDayTypeMetrics("2025-06-30", "v1_daytype", "RDG", "PAD", "WEEKDAY", "")
	if err != nil {
		t.Fatalf("GetDayTypeMetrics: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(metrics) = %d, want 2", len(got))
	}

	// Rewriting the same key replaces rather than duplicating.
	rows[0].DisruptionProb = 0.06
	rows[0].ReliabilityScore = 94
	if err := st.UpsertSlotMetricsDayType(rows[:1]); err != nil {
		t.Fatal(err)
	}
	got, err = st.GetDayTypeMetrics("2025-06-30", "v1_daytype", "RDG", "PAD", "WEEKDAY", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len(metrics) after rewrite = %d, want 2", len(got))
	}
	for _, m := range got {
		if m.DepHHMM == "0810" && m.ReliabilityScore != 94 {
			t.Errorf("rewritten score = %d, want 94", m.ReliabilityScore)
		}
	}
}

func TestSlotMetricsDOWUpsert(t *testing.T) {
	st := setupTestStore(t)
	rows := []models.SlotMetric{
		{
			MetricDate: "2025-06-30", ModelVersion: "v1",
			Operator: "GW", Origin: "RDG", Destination: "PAD",
			DayOfWeek: 1, DepHHMM: "0810",
			DisruptionProb: 0.05, ReliabilityScore: 95,
			EffectiveSampleSize: 10, ConfidenceBand: "medium",
		},
	}
	if err := st.UpsertSlotMetrics(rows); err != nil {
		t.Fatalf("UpsertSlotMetrics: %v", err)
	}
	if err := st.UpsertSlotMetrics(rows); err != nil {
		t.Fatalf("UpsertSlotMetrics rerun: %v", err)
	}
}

func TestJobLedger(t *testing.T) {
	st := setupTestStore(t)

	type args struct {
		FromDate string `json:"from_date"`
	}
	runID, err := st.StartJob("test_job", args{FromDate: "2025-06-01"})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	jr, err := st.GetJobRun(runID)
	if err != nil {
		t.Fatalf("GetJobRun: %v", err)
	}
	if jr == nil {
		t.Fatal("GetJobRun returned nil")
	}
	if jr.Status != "running" {
		t.Errorf("Status = %q, want running", jr.Status)
	}
	if jr.JobName != "test_job" {
		t.Errorf("JobName = %q", jr.JobName)
	}
	if !strings.Contains(jr.Meta, `"from_date":"2025-06-01"`) {
		t.Errorf("Meta = %q, want args recorded", jr.Meta)
	}

	type result struct {
		Rows int `json:"rows"`
	}
	if err := st.FinishJobSuccess(runID, result{Rows: 7}); err != nil {
		t.Fatalf("FinishJobSuccess: %v", err)
	}

	jr, err = st.GetJobRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if jr.Status != "success" {
		t.Errorf("Status = %q, want success", jr.Status)
	}
	if !jr.EndedAt.Valid {
		t.Error("EndedAt not set")
	}
	if !strings.Contains(jr.Meta, `"rows":7`) {
		t.Errorf("Meta = %q, want result merged in", jr.Meta)
	}
	if !strings.Contains(jr.Meta, `"from_date":"2025-06-01"`) {
		t.Errorf("Meta = %q, args should survive the merge", jr.Meta)
	}
}

func TestJobLedgerFailure(t *testing.T) {
	st := setupTestStore(t)

	runID, err := st.StartJob("test_job", nil)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if err := st.FinishJobFail(runID, sql.ErrConnDone); err != nil {
		t.Fatalf("FinishJobFail: %v", err)
	}

	jr, err := st.GetJobRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if jr.Status != "fail" {
		t.Errorf("Status = %q, want fail", jr.Status)
	}
	if !strings.Contains(jr.Meta, "error") {
		t.Errorf("Meta = %q, want error recorded", jr.Meta)
	}
}

func TestGetJobRunMissing(t *testing.T) {
	st := setupTestStore(t)
	jr, err := st.GetJobRun("nope")
	if err != nil {
		t.Fatalf("GetJobRun: %v", err)
	}
	if jr != nil {
		t.Errorf("GetJobRun = %+v, want nil", jr)
	}
}
