package scoring

import (
	"math"
	"testing"
	"time"
)

func TestRecencyWeight(t *testing.T) {
	tests := []struct {
		name     string
		ageDays  int
		halfLife float64
		want     float64
	}{
		{"age zero is full weight", 0, 30, 1.0},
		{"one half-life halves", 30, 30, 0.5},
		{"two half-lives quarter", 60, 30, 0.25},
		{"negative age clamps to full weight", -3, 30, 1.0},
		{"zero half-life disables decay", 45, 0, 1.0},
		{"negative half-life disables decay", 45, -1, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecencyWeight(tt.ageDays, tt.halfLife)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RecencyWeight(%d, %v) = %v, want %v", tt.ageDays, tt.halfLife, got, tt.want)
			}
		})
	}
}

func TestRecencyWeightMonotonic(t *testing.T) {
	prev := RecencyWeight(0, 14)
	for age := 1; age <= 90; age++ {
		w := RecencyWeight(age, 14)
		if w >= prev {
			t.Fatalf("weight not strictly decreasing at age %d: %v >= %v", age, w, prev)
		}
		prev = w
	}
}

func TestBetaBinomialSmooth(t *testing.T) {
	tests := []struct {
		name          string
		successes     float64
		trials        float64
		priorP        float64
		priorStrength float64
		want          float64
	}{
		{"zero trials falls back to prior", 0, 0, 0.08, 50, 0.08},
		{"negative trials falls back to prior", 1, -2, 0.08, 50, 0.08},
		{"zero prior strength is raw rate", 3, 30, 0.5, 0, 0.1},
		{"prior out of range clamps before fallback", 0, 0, 1.7, 50, 1.0},
		{"negative prior clamps to zero", 0, 0, -0.2, 50, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BetaBinomialSmooth(tt.successes, tt.trials, tt.priorP, tt.priorStrength)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("BetaBinomialSmooth = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBetaBinomialSmoothShrinksTowardPrior(t *testing.T) {
	// A slot with a raw rate of 10% under an operator prior of 2% should land
	// strictly between the two.
	raw := 0.10
	prior := 0.02
	got := BetaBinomialSmooth(5, 50, prior, 50)
	if got <= prior || got >= raw {
		t.Errorf("posterior %v not strictly between prior %v and raw %v", got, prior, raw)
	}

	// More evidence moves the posterior closer to the raw rate.
	more := BetaBinomialSmooth(50, 500, prior, 50)
	if more <= got {
		t.Errorf("posterior with 10x evidence %v should exceed %v", more, got)
	}
}

func TestBetaBinomialSmoothBounded(t *testing.T) {
	for _, trials := range []float64{0.5, 1, 10, 1000} {
		got := BetaBinomialSmooth(trials, trials, 0.5, 10)
		if got < 0 || got > 1 {
			t.Errorf("posterior out of [0,1] at trials=%v: %v", trials, got)
		}
	}
}

func TestConfidenceBand(t *testing.T) {
	tests := []struct {
		ess  float64
		want string
	}{
		{0, "low"},
		{7.999, "low"},
		{8, "medium"},
		{19.999, "medium"},
		{20, "high"},
		{500, "high"},
	}
	for _, tt := range tests {
		if got := ConfidenceBand(tt.ess); got != tt.want {
			t.Errorf("ConfidenceBand(%v) = %q, want %q", tt.ess, got, tt.want)
		}
	}
}

func TestReliabilityScore(t *testing.T) {
	tests := []struct {
		p    float64
		want int
	}{
		{0, 100},
		{1, 0},
		{0.05, 95},
		{0.054, 95},
		{0.056, 94},
		{-0.5, 100},
		{1.5, 0},
	}
	for _, tt := range tests {
		if got := ReliabilityScore(tt.p); got != tt.want {
			t.Errorf("ReliabilityScore(%v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestAccumulateWeightedCounts(t *testing.T) {
	metricDate := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	rows := []DailyRow{
		{ServiceDate: metricDate, NServices: 10, NCancelled: 1, NDisrupted: 2},
		{ServiceDate: metricDate.AddDate(0, 0, -30), NServices: 10, NCancelled: 0, NDisrupted: 4},
	}

	wc := AccumulateWeightedCounts(metricDate, rows, 30)
	if math.Abs(wc.WServices-15.0) > 1e-9 {
		t.Errorf("WServices = %v, want 15", wc.WServices)
	}
	if math.Abs(wc.WCancelled-1.0) > 1e-9 {
		t.Errorf("WCancelled = %v, want 1", wc.WCancelled)
	}
	if math.Abs(wc.WDisrupted-4.0) > 1e-9 {
		t.Errorf("WDisrupted = %v, want 4", wc.WDisrupted)
	}
}

func TestComputeSlotMetricRecencyWeighting(t *testing.T) {
	// 50 days of a slot that runs 10 services a day with one disruption.
	// The raw rate is exactly 10%; decay plus a lower operator prior pulls
	// the estimate below it, and 50 busy days is easily "high" evidence.
	metricDate := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	var rows []DailyRow
	for age := 1; age <= 50; age++ {
		rows = append(rows, DailyRow{
			ServiceDate: metricDate.AddDate(0, 0, -age),
			NServices:   10,
			NCancelled:  0,
			NDisrupted:  1,
		})
	}

	wc := AccumulateWeightedCounts(metricDate, rows, 30)
	if wc.WServices >= 500 {
		t.Fatalf("WServices = %v, expected decay below the unweighted 500", wc.WServices)
	}

	m := ComputeSlotMetric(wc, 0.02, 0.01, 50)
	if m.DisruptionProb >= 0.10 {
		t.Errorf("DisruptionProb = %v, want below raw 0.10 given 0.02 prior", m.DisruptionProb)
	}
	if m.DisruptionProb <= 0.02 {
		t.Errorf("DisruptionProb = %v, want above the 0.02 prior", m.DisruptionProb)
	}
	if m.ConfidenceBand != "high" {
		t.Errorf("ConfidenceBand = %q, want high", m.ConfidenceBand)
	}
	if m.ReliabilityScore != ReliabilityScore(m.DisruptionProb) {
		t.Errorf("score %d inconsistent with probability %v", m.ReliabilityScore, m.DisruptionProb)
	}
	if m.ReliabilityScore < 90 || m.ReliabilityScore > 98 {
		t.Errorf("ReliabilityScore = %d, want in [90,98]", m.ReliabilityScore)
	}
}

func TestComputeSlotMetricNoEvidence(t *testing.T) {
	m := ComputeSlotMetric(WeightedCounts{}, 0.06, 0.02, 50)
	if m.DisruptionProb != 0.06 {
		t.Errorf("DisruptionProb = %v, want prior 0.06", m.DisruptionProb)
	}
	if m.CancellationProb != 0.02 {
		t.Errorf("CancellationProb = %v, want prior 0.02", m.CancellationProb)
	}
	if m.EffectiveSampleSize != 0 {
		t.Errorf("EffectiveSampleSize = %v, want 0", m.EffectiveSampleSize)
	}
	if m.ConfidenceBand != "low" {
		t.Errorf("ConfidenceBand = %q, want low", m.ConfidenceBand)
	}
}
