package core

import "time"

// EventTypeRecompute is the audit event type written after every
// successful recomputation.
const EventTypeRecompute = "recompute"

// ScoreMetrics are the intermediate aggregates behind a composite
// score, persisted alongside it for explainability.
type ScoreMetrics struct {
	AvgEngagement   float64 `json:"avgEngagement"`
	AvgGeoRelevance float64 `json:"avgGeoRelevance"`
	AvgUGCHealth    float64 `json:"avgUgcHealth"`
	Volatility      float64 `json:"volatility"`
	DataPoints      int     `json:"dataPoints"`
}

// TenantScoreSummary is the latest score per tenant. One row per
// tenant, fully overwritten on every recompute: last writer wins.
type TenantScoreSummary struct {
	TenantID    string       `gorm:"primaryKey;size:255" json:"tenantId"`
	Score       float64      `json:"score"`
	RiskLevel   float64      `json:"riskLevel"`
	LastUpdated time.Time    `json:"lastUpdated"`
	Metrics     ScoreMetrics `gorm:"embedded;embeddedPrefix:metric_" json:"metrics"`
}

// ScoreEvent is one append-only audit record of a recomputation.
type ScoreEvent struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID  string    `gorm:"index;size:255;not null" json:"tenantId"`
	EventType string    `gorm:"size:50" json:"eventType"`
	Payload   []byte    `gorm:"type:text" json:"payload"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
