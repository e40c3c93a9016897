package harness

import (
	"math"
	"sort"
	"time"

	"github.com/jonathan/echo-pipeline/internal/types"
)

// durationStats summarizes sample durations; percentiles use the nearest-rank method
func durationStats(samples []types.MetricSample) *types.DurationStats {
	if len(samples) == 0 {
		return nil
	}

	ms := make([]float64, len(samples))
	var total float64
	for i, s := range samples {
		ms[i] = float64(s.Duration) / float64(time.Millisecond)
		total += ms[i]
	}
	sort.Float64s(ms)

	return &types.DurationStats{
		Count:  len(ms),
		MinMS:  ms[0],
		MaxMS:  ms[len(ms)-1],
		MeanMS: total / float64(len(ms)),
		P50MS:  percentile(ms, 50),
		P90MS:  percentile(ms, 90),
		P95MS:  percentile(ms, 95),
		P99MS:  percentile(ms, 99),
	}
}

// percentile expects sorted input
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}
