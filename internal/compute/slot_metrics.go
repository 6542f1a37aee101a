package compute

import (
	"strconv"

	"github.com/lox/railscore/internal/models"
	"github.com/lox/railscore/internal/scoring"
	"github.com/lox/railscore/internal/store"
	"github.com/lox/railscore/internal/timeutil"
)

// SlotMetrics computes and upserts the day-of-week model: slots grouped by
// (operator, origin, destination, day_of_week, dep_hhmm).
func SlotMetrics(st *store.Store, p Params) (Result, error) {
	return run(st, p, ModelVersionDOW, func(p Params, rows []aggRow, priorD, priorC map[string]float64) (int, int, error) {
		slots := groupSlots(rows, func(r aggRow) string {
			return strconv.Itoa(r.DayOfWeek)
		})

		metricDate := p.MetricDate.Format("2006-01-02")
		out := make([]models.SlotMetric, 0, len(slots))
		for key, slotRows := range slots {
			wc := scoring.AccumulateWeightedCounts(p.MetricDate, dailyRows(slotRows), p.HalfLifeDays)
			computed := scoring.ComputeSlotMetric(wc, priorD[key.Operator], priorC[key.Operator], p.PriorStrength)

			dow, _ := strconv.Atoi(key.Group)
			out = append(out, models.SlotMetric{
				MetricDate:          metricDate,
				ModelVersion:        ModelVersionDOW,
				Operator:            key.Operator,
				Origin:              key.Origin,
				Destination:         key.Destination,
				DayOfWeek:           dow,
				DepHHMM:             key.DepHHMM,
				DisruptionProb:      computed.DisruptionProb,
				CancellationProb:    computed.CancellationProb,
				ReliabilityScore:    computed.ReliabilityScore,
				EffectiveSampleSize: computed.EffectiveSampleSize,
				ConfidenceBand:      computed.ConfidenceBand,
			})
		}

		if err := st.UpsertSlotMetrics(out); err != nil {
			return 0, 0, err
		}
		return len(out), len(priorD), nil
	})
}

// SlotMetricsDayType computes and upserts the day-type model: slots grouped by
// (operator, origin, destination, WEEKDAY/SATURDAY/SUNDAY, dep_hhmm).
func SlotMetricsDayType(st *store.Store, p Params) (Result, error) {
	return run(st, p, ModelVersionDayType, func(p Params, rows []aggRow, priorD, priorC map[string]float64) (int, int, error) {
		slots := groupSlots(rows, func(r aggRow) string {
			return timeutil.DayTypeForDOW(r.DayOfWeek)
		})

		metricDate := p.MetricDate.Format("2006-01-02")
		out := make([]models.SlotMetricDayType, 0, len(slots))
		for key, slotRows := range slots {
			wc := scoring.AccumulateWeightedCounts(p.MetricDate, dailyRows(slotRows), p.HalfLifeDays)
			computed := scoring.ComputeSlotMetric(wc, priorD[key.Operator], priorC[key.Operator], p.PriorStrength)

			out = append(out, models.SlotMetricDayType{
				MetricDate:          metricDate,
				ModelVersion:        ModelVersionDayType,
				Operator:            key.Operator,
				Origin:              key.Origin,
				Destination:         key.Destination,
				DayType:             key.Group,
				DepHHMM:             key.DepHHMM,
				DisruptionProb:      computed.DisruptionProb,
				CancellationProb:    computed.CancellationProb,
				ReliabilityScore:    computed.ReliabilityScore,
				EffectiveSampleSize: computed.EffectiveSampleSize,
				ConfidenceBand:      computed.ConfidenceBand,
			})
		}

		if err := st.UpsertSlotMetricsDayType(out); err != nil {
			return 0, 0, err
		}
		return len(out), len(priorD), nil
	})
}
