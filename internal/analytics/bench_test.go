package analytics

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"applogs/internal/models"
)

var benchOperations = []string{"USER_LOGIN", "USER_LOGOUT", "VIEW_LEAVES", "CREATE_LEAVE", "DELETE_LEAVE", "ADMIN_UPDATE_POLICY"}

// syntheticBatch spreads n records over the week before refNow with a 5%
// failure rate and a long-tailed execution time.
func syntheticBatch(n int) []models.LogRecord {
	rng := rand.New(rand.NewSource(42))
	out := make([]models.LogRecord, n)
	for i := range out {
		status := models.StatusSuccess
		if rng.Intn(100) < 5 {
			status = models.StatusFailure
		}
		ts := refNow.Add(-time.Duration(rng.Int63n(int64(7 * 24 * time.Hour))))
		out[i] = models.LogRecord{
			ID:              int64(i + 1),
			Timestamp:       models.NewTimestamp(ts),
			UserID:          fmt.Sprintf("user-%d", rng.Intn(50)),
			Operation:       benchOperations[rng.Intn(len(benchOperations))],
			Status:          status,
			IPAddress:       fmt.Sprintf("10.0.0.%d", rng.Intn(20)),
			HTTPMethod:      "GET",
			ExecutionTimeMs: models.NewMillis(int64(rng.ExpFloat64() * 200)),
		}
	}
	return out
}

func BenchmarkDerivePerformance(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		batch := syntheticBatch(size)
		b.Run(fmt.Sprintf("records=%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				DerivePerformance(batch, 0)
			}
		})
	}
}

func BenchmarkBuildBuckets(b *testing.B) {
	batch := syntheticBatch(1000)
	for _, w := range []Window{Hours(24), Days(7), Days(30)} {
		b.Run(w.String(), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				BuildBuckets(batch, w, refNow, time.UTC)
			}
		})
	}
}

func BenchmarkDeriveSecurity(b *testing.B) {
	batch := syntheticBatch(1000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		DeriveSecurity(batch, batch, batch)
		IPActivity(batch)
		SecurityTrends(batch, Days(7), refNow, time.UTC)
	}
}

func BenchmarkPercentile(b *testing.B) {
	samples := make([]float64, 10000)
	rng := rand.New(rand.NewSource(7))
	for i := range samples {
		samples[i] = rng.ExpFloat64() * 200
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Percentile(samples, 95)
	}
}
