// Package analytics turns batches of application log records into
// chart-ready metrics: percentiles, calendar buckets and derived rates.
// Every function here is pure and returns freshly allocated results.
package analytics

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Percentile returns the nearest-rank percentile of samples: the value at
// rank ceil(n*p/100)-1 of the ascending order. p is clamped to [0,100].
// It returns 0 for an empty sample set and never mutates the input.
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	p = math.Max(0, math.Min(100, p))

	v, err := stats.PercentileNearestRank(samples, p)
	if err != nil {
		return 0
	}
	return v
}

func percentileMillis(samples []int64, p float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = float64(s)
	}
	return int64(math.Floor(Percentile(values, p)))
}

func averageMillis(samples []int64) int64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		sum += s
	}
	return sum / int64(len(samples))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ratePercent returns part/total*100, or 0 when total is zero.
func ratePercent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
