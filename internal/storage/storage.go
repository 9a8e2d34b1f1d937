package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"logsentry/internal/model"

	"github.com/sirupsen/logrus"
)

var ErrAlertNotFound = errors.New("alert not found")

const (
	DefaultMaxLogs   = 50000
	DefaultMaxAlerts = 10000
)

// Storage keeps the most recent logs and alerts in memory. IDs are assigned
// sequentially and never reused, even after old entries are evicted.
type Storage struct {
	mu          sync.RWMutex
	logs        []model.LogEvent
	alerts      []model.Alert
	nextLogID   int64
	nextAlertID int64
	maxLogs     int
	maxAlerts   int
	logger      *logrus.Logger
}

type LogFilter struct {
	SourceIP string
	LogType  string
	Search   string
	Limit    int
}

type AlertFilter struct {
	Severity     model.Severity
	SourceIP     string
	Acknowledged *bool
	Limit        int
}

type Stats struct {
	TotalLogs            int                    `json:"total_logs"`
	TotalAlerts          int                    `json:"total_alerts"`
	UnacknowledgedAlerts int                    `json:"unacknowledged_alerts"`
	LogsLastHour         int                    `json:"logs_last_hour"`
	AlertsLastHour       int                    `json:"alerts_last_hour"`
	TopSourceIPs         []IPCount              `json:"top_source_ips"`
	AlertsBySeverity     map[model.Severity]int `json:"alerts_by_severity"`
}

type IPCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

const topSourceIPs = 10

func NewStorage(maxLogs, maxAlerts int, logger *logrus.Logger) *Storage {
	if maxLogs <= 0 {
		maxLogs = DefaultMaxLogs
	}
	if maxAlerts <= 0 {
		maxAlerts = DefaultMaxAlerts
	}
	return &Storage{
		logs:      make([]model.LogEvent, 0),
		alerts:    make([]model.Alert, 0),
		maxLogs:   maxLogs,
		maxAlerts: maxAlerts,
		logger:    logger,
	}
}

// AddLog stores ev and returns it with its assigned ID.
func (s *Storage) AddLog(ev model.LogEvent) model.LogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLogID++
	ev.ID = s.nextLogID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	s.logs = append(s.logs, ev)
	if len(s.logs) > s.maxLogs {
		s.logs = s.logs[len(s.logs)-s.maxLogs:]
	}
	return ev
}

// GetLogs returns matching logs, latest first.
func (s *Storage) GetLogs(f LogFilter) []model.LogEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(f.Search)
	result := make([]model.LogEvent, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
		ev := s.logs[i]
		if f.SourceIP != "" && ev.SourceIP != f.SourceIP {
			continue
		}
		if f.LogType != "" && ev.LogType != f.LogType {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(ev.Message), search) {
			continue
		}
		result = append(result, ev)
	}
	return result
}

// AddAlert stores a and returns it with its assigned ID, unacknowledged.
func (s *Storage) AddAlert(a model.Alert) model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAlertID++
	a.ID = s.nextAlertID
	a.Acknowledged = false
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	s.alerts = append(s.alerts, a)
	if len(s.alerts) > s.maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.maxAlerts:]
	}
	return a
}

// GetAlerts returns matching alerts, latest first.
func (s *Storage) GetAlerts(f AlertFilter) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Alert, 0)
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
		a := s.alerts[i]
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.SourceIP != "" && a.SourceIP != f.SourceIP {
			continue
		}
		if f.Acknowledged != nil && a.Acknowledged != *f.Acknowledged {
			continue
		}
		result = append(result, a)
	}
	return result
}

func (s *Storage) GetAlert(id int64) (model.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.alertIndex(id); i >= 0 {
		return s.alerts[i], true
	}
	return model.Alert{}, false
}

func (s *Storage) Acknowledge(id int64) (model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.alertIndex(id)
	if i < 0 {
		return model.Alert{}, ErrAlertNotFound
	}
	s.alerts[i].Acknowledged = true
	return s.alerts[i], nil
}

// alertIndex relies on IDs being ascending in the slice.
func (s *Storage) alertIndex(id int64) int {
	lo, hi := 0, len(s.alerts)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.alerts[mid].ID < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s.alerts) && s.alerts[lo].ID == id {
		return lo
	}
	return -1
}

// Stats summarises the stored data. Hourly counts and the top source IPs
// (over the last 24 hours) are relative to now.
func (s *Storage) Stats(now time.Time) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	stats := Stats{
		TotalLogs:        len(s.logs),
		TotalAlerts:      len(s.alerts),
		TopSourceIPs:     make([]IPCount, 0),
		AlertsBySeverity: make(map[model.Severity]int),
	}

	perIP := make(map[string]int)
	for i := range s.logs {
		ts := s.logs[i].Timestamp
		if !ts.Before(hourAgo) {
			stats.LogsLastHour++
		}
		if !ts.Before(dayAgo) {
			perIP[s.logs[i].SourceIP]++
		}
	}
	for ip, n := range perIP {
		stats.TopSourceIPs = append(stats.TopSourceIPs, IPCount{IP: ip, Count: n})
	}
	sort.Slice(stats.TopSourceIPs, func(i, j int) bool {
		a, b := stats.TopSourceIPs[i], stats.TopSourceIPs[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.IP < b.IP
	})
	if len(stats.TopSourceIPs) > topSourceIPs {
		stats.TopSourceIPs = stats.TopSourceIPs[:topSourceIPs]
	}

	for i := range s.alerts {
		if !s.alerts[i].Acknowledged {
			stats.UnacknowledgedAlerts++
		}
		if !s.alerts[i].Timestamp.Before(hourAgo) {
			stats.AlertsLastHour++
		}
		stats.AlertsBySeverity[s.alerts[i].Severity]++
	}
	return stats
}
