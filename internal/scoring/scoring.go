// Package scoring implements the recency-weighted beta-binomial model that
// converts sparse daily slot counts into smoothed disruption and cancellation
// probabilities.
package scoring

import (
	"math"
	"time"
)

// WeightedCounts are recency-weighted totals for a set of daily rows relative
// to a reference date. They are transient: consumed immediately by the
// smoothing step, never persisted.
type WeightedCounts struct {
	WServices  float64
	WCancelled float64
	WDisrupted float64
}

// SlotMetricComputed is the smoothed result for one slot.
type SlotMetricComputed struct {
	DisruptionProb      float64
	CancellationProb    float64
	ReliabilityScore    int
	EffectiveSampleSize float64
	ConfidenceBand      string
}

// DailyRow is the subset of a daily slot aggregate the model consumes.
type DailyRow struct {
	ServiceDate time.Time
	NServices   int
	NCancelled  int
	NDisrupted  int
}

// RecencyWeight computes the exponential decay weight for a row of the given
// age: weight(0) = 1 and weight(halfLifeDays) = 0.5. A non-positive half-life
// disables decay entirely. Negative ages (future rows) get full weight.
func RecencyWeight(ageDays int, halfLifeDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	if halfLifeDays <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * float64(ageDays) / halfLifeDays)
}

// AccumulateWeightedCounts sums decay-weighted service, cancellation and
// disruption counts across rows, with ages measured back from metricDate.
func AccumulateWeightedCounts(metricDate time.Time, rows []DailyRow, halfLifeDays float64) WeightedCounts {
	var wc WeightedCounts
	for _, r := range rows {
		ageDays := int(metricDate.Sub(r.ServiceDate).Hours() / 24)
		w := RecencyWeight(ageDays, halfLifeDays)
		wc.WServices += w * float64(r.NServices)
		wc.WCancelled += w * float64(r.NCancelled)
		wc.WDisrupted += w * float64(r.NDisrupted)
	}
	return wc
}

// BetaBinomialSmooth shrinks an observed rate toward a prior:
//
//	alpha = priorP * priorStrength
//	beta  = (1 - priorP) * priorStrength
//	posterior mean = (alpha + successes) / (alpha + beta + trials)
//
// Zero trials fall back entirely to the prior. Successes and trials may be
// recency-weighted (non-integer).
func BetaBinomialSmooth(successes, trials, priorP, priorStrength float64) float64 {
	priorP = clamp01(priorP)
	if trials <= 0 {
		return priorP
	}
	if priorStrength < 0 {
		priorStrength = 0
	}
	alpha := priorP * priorStrength
	beta := (1.0 - priorP) * priorStrength
	return clamp01((alpha + successes) / (alpha + beta + trials))
}

// ConfidenceBand classifies how much weighted evidence backs an estimate.
func ConfidenceBand(effectiveSampleSize float64) string {
	if effectiveSampleSize >= 20.0 {
		return "high"
	}
	if effectiveSampleSize >= 8.0 {
		return "medium"
	}
	return "low"
}

// ReliabilityScore converts a disruption probability into the bounded 0..100
// integer score: round(100 * (1 - p)).
func ReliabilityScore(disruptionProb float64) int {
	score := int(math.Round(100.0 * (1.0 - disruptionProb)))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// ComputeSlotMetric smooths a slot's weighted counts against its operator's
// prior rates and derives the score and confidence band.
func ComputeSlotMetric(wc WeightedCounts, operatorPriorDisruption, operatorPriorCancel, priorStrength float64) SlotMetricComputed {
	nEff := wc.WServices

	pDisruption := BetaBinomialSmooth(wc.WDisrupted, wc.WServices, operatorPriorDisruption, priorStrength)
	pCancel := BetaBinomialSmooth(wc.WCancelled, wc.WServices, operatorPriorCancel, priorStrength)

	return SlotMetricComputed{
		DisruptionProb:      pDisruption,
		CancellationProb:    pCancel,
		ReliabilityScore:    ReliabilityScore(pDisruption),
		EffectiveSampleSize: nEff,
		ConfidenceBand:      ConfidenceBand(nEff),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
