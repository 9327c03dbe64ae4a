package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		p       float64
		want    float64
	}{
		{name: "empty", samples: nil, p: 95, want: 0},
		{name: "empty p0", samples: []float64{}, p: 0, want: 0},
		{name: "single element p50", samples: []float64{42}, p: 50, want: 42},
		{name: "single element p100", samples: []float64{42}, p: 100, want: 42},
		{name: "single element p0", samples: []float64{42}, p: 0, want: 42},
		{name: "p100 is max", samples: []float64{5, 1, 9, 3}, p: 100, want: 9},
		{name: "p0 is min", samples: []float64{5, 1, 9, 3}, p: 0, want: 1},
		{name: "p50 of four", samples: []float64{40, 10, 30, 20}, p: 50, want: 20},
		{name: "p95 of twenty", samples: seq(1, 20), p: 95, want: 19},
		{name: "p99 of hundred", samples: seq(1, 100), p: 99, want: 99},
		{name: "p95 of three", samples: []float64{100, 200, 300}, p: 95, want: 300},
		{name: "duplicates", samples: []float64{7, 7, 7, 1}, p: 50, want: 7},
		{name: "p above range clamps", samples: []float64{1, 2, 3}, p: 250, want: 3},
		{name: "p below range clamps", samples: []float64{1, 2, 3}, p: -5, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percentile(tt.samples, tt.p))
		})
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	samples := []float64{3, 1, 2}
	Percentile(samples, 50)
	assert.Equal(t, []float64{3, 1, 2}, samples)
}

func TestPercentileDeterministic(t *testing.T) {
	samples := []float64{12, 3, 99, 45, 45, 8, 61}
	first := Percentile(samples, 95)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Percentile(samples, 95))
	}
}

func seq(from, to int) []float64 {
	out := make([]float64, 0, to-from+1)
	for i := to; i >= from; i-- {
		out = append(out, float64(i))
	}
	return out
}
