package rules

import (
	"fmt"
	"sync"
	"time"

	"logsentry/internal/model"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	AnomalyHighFrequency = "high_frequency"

	anomalyMinHistory  = 10
	anomalyMaxEvents   = 100
	anomalyWindowHours = 24

	DefaultAnomalyTrackedIPs  = 10000
	DefaultAnomalyHistorySize = 5000
)

type ipHistory struct {
	mu    sync.Mutex
	times []time.Time
}

// AnomalyDetector keeps per-IP event history and flags IPs with unusually
// high event rates. It is independent of Engine.Check; callers record and
// query it explicitly.
type AnomalyDetector struct {
	mu         sync.Mutex
	history    *lru.Cache[string, *ipHistory]
	maxHistory int
}

func NewAnomalyDetector(maxIPs, maxHistory int) (*AnomalyDetector, error) {
	if maxIPs <= 0 {
		maxIPs = DefaultAnomalyTrackedIPs
	}
	if maxHistory <= 0 {
		maxHistory = DefaultAnomalyHistorySize
	}

	cache, err := lru.New[string, *ipHistory](maxIPs)
	if err != nil {
		return nil, fmt.Errorf("failed to create anomaly history cache: %w", err)
	}
	return &AnomalyDetector{
		history:    cache,
		maxHistory: maxHistory,
	}, nil
}

// Record appends ts to the IP's history, dropping the oldest entries past
// the per-IP cap.
func (d *AnomalyDetector) Record(ip string, ts time.Time) {
	d.mu.Lock()
	h, ok := d.history.Get(ip)
	if !ok {
		h = &ipHistory{}
		d.history.Add(ip, h)
	}
	d.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.times = append(h.times, ts)
	if over := len(h.times) - d.maxHistory; over > 0 {
		h.times = append(h.times[:0], h.times[over:]...)
	}
}

// Detect reports a high_frequency anomaly when the IP has at least 10
// recorded events and more than 100 of them fall within the 24 hours before now.
func (d *AnomalyDetector) Detect(ip string, now time.Time) *model.Anomaly {
	d.mu.Lock()
	h, ok := d.history.Peek(ip)
	d.mu.Unlock()
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.times) < anomalyMinHistory {
		return nil
	}

	cutoff := now.Add(-anomalyWindowHours * time.Hour)
	recent := 0
	for _, t := range h.times {
		if t.After(cutoff) {
			recent++
		}
	}
	if recent <= anomalyMaxEvents {
		return nil
	}

	return &model.Anomaly{
		Type:            AnomalyHighFrequency,
		SourceIP:        ip,
		EventCount:      recent,
		TimeWindowHours: anomalyWindowHours,
		Description:     fmt.Sprintf("Anomalous activity: %d events in %d hours", recent, anomalyWindowHours),
	}
}

// TrackedIPs returns the number of IPs with recorded history.
func (d *AnomalyDetector) TrackedIPs() int {
	return d.history.Len()
}
