package core

import "time"

// SignalRecord is one day of visibility signals for a tenant. A nil
// metric means the signal was not collected that day; it is distinct
// from a zero value and excluded from averages.
type SignalRecord struct {
	Date         time.Time `json:"date"`
	Engagement   *float64  `json:"engagement,omitempty"`
	GeoRelevance *float64  `json:"geoRelevance,omitempty"`
	UGCHealth    *float64  `json:"ugcHealth,omitempty"`
}

// SignalWindow is a tenant's signal records over a lookback period,
// newest first.
type SignalWindow []SignalRecord

// Newest returns the most recent record date in the window. It scans
// rather than trusting ordering, so callers can hand it any slice.
func (w SignalWindow) Newest() (time.Time, bool) {
	if len(w) == 0 {
		return time.Time{}, false
	}
	newest := w[0].Date
	for _, r := range w[1:] {
		if r.Date.After(newest) {
			newest = r.Date
		}
	}
	return newest, true
}
