package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

// window builds n daily records ending today, newest first.
func window(n int, engagement, geo, ugc float64) core.SignalWindow {
	w := make(core.SignalWindow, 0, n)
	for i := 0; i < n; i++ {
		w = append(w, core.SignalRecord{
			Date:         now.AddDate(0, 0, -i),
			Engagement:   f(engagement),
			GeoRelevance: f(geo),
			UGCHealth:    f(ugc),
		})
	}
	return w
}

func TestCompute_SingleRecord(t *testing.T) {
	w := core.SignalWindow{{
		Date:         now,
		Engagement:   f(80),
		GeoRelevance: f(70),
		UGCHealth:    f(60),
	}}

	res, ok := Compute(w, now)
	require.True(t, ok)

	// 80*0.40 + 70*0.35 + 60*0.25 = 71.5, no volatility penalty below
	// two points. One data point is too sparse to trust.
	assert.Equal(t, 71.5, res.Score)
	assert.Equal(t, RiskSparse, res.RiskLevel)
	assert.Equal(t, 0.0, res.Metrics.Volatility)
	assert.Equal(t, 1, res.Metrics.DataPoints)
}

func TestCompute_StableFullWindow(t *testing.T) {
	res, ok := Compute(window(10, 50, 40, 30), now)
	require.True(t, ok)

	// 50*0.40 + 40*0.35 + 30*0.25 = 41.5; constant series, fresh data.
	assert.Equal(t, 41.5, res.Score)
	assert.Equal(t, RiskNominal, res.RiskLevel)
	assert.Equal(t, 10, res.Metrics.DataPoints)
	assert.Equal(t, 50.0, res.Metrics.AvgEngagement)
	assert.Equal(t, 40.0, res.Metrics.AvgGeoRelevance)
	assert.Equal(t, 30.0, res.Metrics.AvgUGCHealth)
}

func TestCompute_StaleWindow(t *testing.T) {
	w := window(10, 50, 40, 30)
	for i := range w {
		w[i].Date = w[i].Date.AddDate(0, 0, -10)
	}

	res, ok := Compute(w, now)
	require.True(t, ok)

	// Staleness overrides everything except sparsity, regardless of score.
	assert.Equal(t, 41.5, res.Score)
	assert.Equal(t, RiskStale, res.RiskLevel)
}

func TestCompute_NoEngagementData(t *testing.T) {
	w := core.SignalWindow{
		{Date: now, GeoRelevance: f(90), UGCHealth: f(90)},
		{Date: now.AddDate(0, 0, -1), GeoRelevance: f(80)},
	}

	_, ok := Compute(w, now)
	assert.False(t, ok, "window without engagement values must be a no-op")
}

func TestCompute_SparsityWinsOverVolatility(t *testing.T) {
	w := core.SignalWindow{
		{Date: now, Engagement: f(5)},
		{Date: now.AddDate(0, 0, -1), Engagement: f(95)},
		{Date: now.AddDate(0, 0, -2), Engagement: f(10)},
	}

	res, ok := Compute(w, now)
	require.True(t, ok)

	// volatility is way past the unstable threshold, but three data
	// points trip the sparsity rung first.
	assert.Greater(t, res.Metrics.Volatility, unstableVolatility)
	assert.Equal(t, RiskSparse, res.RiskLevel)
}

func TestCompute_UnstableSeries(t *testing.T) {
	values := []float64{10, 30, 50, 70, 90}
	w := make(core.SignalWindow, 0, len(values))
	for i, v := range values {
		w = append(w, core.SignalRecord{Date: now.AddDate(0, 0, -i), Engagement: f(v)})
	}

	res, ok := Compute(w, now)
	require.True(t, ok)

	// sample stddev of 10..90 step 20 is ~31.6: unstable, and the
	// volatility penalty is capped at 30%.
	assert.Equal(t, RiskUnstable, res.RiskLevel)
	assert.Equal(t, 31.62, res.Metrics.Volatility)
	assert.Equal(t, round2(50*weightEngagement*(1-penaltyCap)), res.Score)
}

func TestCompute_AbsentSeriesAverageZero(t *testing.T) {
	w := window(10, 60, 0, 0)
	for i := range w {
		w[i].GeoRelevance = nil
		w[i].UGCHealth = nil
	}

	res, ok := Compute(w, now)
	require.True(t, ok)

	assert.Equal(t, 0.0, res.Metrics.AvgGeoRelevance)
	assert.Equal(t, 0.0, res.Metrics.AvgUGCHealth)
	assert.Equal(t, 24.0, res.Score) // 60*0.40
}

func TestCompute_NegativeValuesFiltered(t *testing.T) {
	w := window(6, 50, 40, 30)
	w[0].Engagement = f(-10)

	res, ok := Compute(w, now)
	require.True(t, ok)
	assert.Equal(t, 5, res.Metrics.DataPoints)
	assert.Equal(t, 50.0, res.Metrics.AvgEngagement)
}

func TestCompute_Idempotent(t *testing.T) {
	w := window(10, 47.123, 38.9, 31.55)

	first, ok := Compute(w, now)
	require.True(t, ok)
	second, ok := Compute(w, now)
	require.True(t, ok)

	assert.Equal(t, first, second)
}

func TestSampleStdDev(t *testing.T) {
	assert.Equal(t, 0.0, sampleStdDev(nil))
	assert.Equal(t, 0.0, sampleStdDev([]float64{42}))
	assert.InDelta(t, 1.0, sampleStdDev([]float64{1, 2, 3}), 1e-9)
}
