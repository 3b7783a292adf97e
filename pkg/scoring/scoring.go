package scoring

import (
	"math"
	"time"

	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/core"
)

// Weight constants for the composite score formula. They must sum to 1.0.
const (
	weightEngagement   = 0.40
	weightGeoRelevance = 0.35
	weightUGCHealth    = 0.25
)

// Volatility penalty parameters. The penalty is volatility/penaltyScale,
// capped at penaltyCap so even an extremely unstable series loses at
// most 30% of its score.
const (
	penaltyScale = 20.0
	penaltyCap   = 0.30
)

// Risk classification thresholds. The ladder is ordered: sparsity and
// staleness are more actionable failure modes than volatility, so they
// are checked first and short-circuit the classification.
const (
	minDataPoints      = 5
	staleAfterDays     = 7
	unstableVolatility = 15.0
)

// Risk levels reported per classification rung.
const (
	RiskSparse   = 0.8 // too little evidence to trust the score
	RiskStale    = 0.6 // newest record is over a week old
	RiskUnstable = 0.4 // primary metric is noisy
	RiskNominal  = 0.2
)

// Result is the outcome of one score computation.
type Result struct {
	Score     float64 // composite score, 0-100
	RiskLevel float64 // 0-1, one of the Risk* constants
	Metrics   core.ScoreMetrics
}

// Compute calculates the composite score for the window.
//
// Formula:
//
//	score = (avgEngagement*0.40 + avgGeo*0.35 + avgUGC*0.25)
//	        * (1 - min(volatility/20, 0.30))
//
// where volatility is the sample standard deviation of the engagement
// series. The second return value is false when the window has no
// engagement data at all; the caller must then write nothing, not even
// a zeroed summary.
func Compute(window core.SignalWindow, now time.Time) (Result, bool) {
	engagement := collect(window, func(r core.SignalRecord) *float64 { return r.Engagement })
	if len(engagement) == 0 {
		return Result{}, false
	}
	geo := collect(window, func(r core.SignalRecord) *float64 { return r.GeoRelevance })
	ugc := collect(window, func(r core.SignalRecord) *float64 { return r.UGCHealth })

	avgEngagement := mean(engagement)
	avgGeo := mean(geo)
	avgUGC := mean(ugc)
	volatility := sampleStdDev(engagement)

	penalty := volatility / penaltyScale
	if penalty > penaltyCap {
		penalty = penaltyCap
	}

	score := (avgEngagement*weightEngagement +
		avgGeo*weightGeoRelevance +
		avgUGC*weightUGCHealth) * (1 - penalty)

	return Result{
		Score:     round2(score),
		RiskLevel: riskLevel(len(engagement), window, volatility, now),
		Metrics: core.ScoreMetrics{
			AvgEngagement:   round2(avgEngagement),
			AvgGeoRelevance: round2(avgGeo),
			AvgUGCHealth:    round2(avgUGC),
			Volatility:      round2(volatility),
			DataPoints:      len(engagement),
		},
	}, true
}

// riskLevel walks the classification ladder, first match wins.
func riskLevel(dataPoints int, window core.SignalWindow, volatility float64, now time.Time) float64 {
	if dataPoints < minDataPoints {
		return RiskSparse
	}
	if newest, ok := window.Newest(); ok {
		if now.Sub(newest).Hours()/24 > staleAfterDays {
			return RiskStale
		}
	}
	if volatility > unstableVolatility {
		return RiskUnstable
	}
	return RiskNominal
}

// collect filters one metric's series down to present, non-negative values.
func collect(window core.SignalWindow, metric func(core.SignalRecord) *float64) []float64 {
	values := make([]float64, 0, len(window))
	for _, r := range window {
		v := metric(r)
		if v == nil || *v < 0 {
			continue
		}
		values = append(values, *v)
	}
	return values
}

// mean returns the arithmetic mean, or 0 for an empty series.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev returns the sample standard deviation (n-1 divisor),
// or 0 below two points.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
