package rules

import (
	"sort"
	"strings"
	"time"

	"logsentry/internal/metrics"
	"logsentry/internal/model"

	"github.com/sirupsen/logrus"
)

// Engine matches log events against the store's active rules and applies
// sliding-window threshold correlation per (rule, source IP).
type Engine struct {
	store   *Store
	state   *CorrelationState
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

type EngineStats struct {
	TotalRules     int `json:"total_rules"`
	EnabledRules   int `json:"enabled_rules"`
	TrackedIPs     int `json:"tracked_ips"`
	ActivePatterns int `json:"active_patterns"`
}

func NewEngine(store *Store, state *CorrelationState, m *metrics.Metrics, logger *logrus.Logger) *Engine {
	return &Engine{
		store:   store,
		state:   state,
		metrics: m,
		logger:  logger,
	}
}

// Check evaluates one event and returns the alerts it triggers, most urgent
// (lowest priority value) first. Rules with equal priority keep store order.
func (e *Engine) Check(event model.LogEvent) []model.Alert {
	start := time.Now()
	rules := e.store.active()
	lowered := strings.ToLower(event.Message)

	var alerts []model.Alert
	for _, cr := range rules {
		matched, err := cr.matches(lowered)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"rule":      cr.rule.Name,
				"source_ip": event.SourceIP,
			}).Warnf("Regex evaluation failed: %v", err)
			continue
		}
		if !matched {
			continue
		}

		window := time.Duration(cr.rule.TimeWindow) * time.Second
		fired, count := e.state.Observe(cr.rule.Name, cr.epoch, event.SourceIP, event.Timestamp, window, cr.rule.Threshold)
		if !fired {
			e.logger.Debugf("Rule %s matched %s (%d/%d)", cr.rule.Name, event.SourceIP, count, cr.rule.Threshold)
			continue
		}

		alerts = append(alerts, model.Alert{
			Timestamp:   event.Timestamp,
			RuleName:    cr.rule.Name,
			Severity:    cr.rule.Severity,
			Description: cr.describe(event),
			SourceIP:    event.SourceIP,
			Priority:    cr.rule.Priority,
		})
		e.metrics.AlertFired(cr.rule.Name, string(cr.rule.Severity))
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Priority < alerts[j].Priority
	})

	e.metrics.ObserveCheck(time.Since(start))
	return alerts
}

func (e *Engine) Stats() EngineStats {
	rs := e.store.Stats()
	return EngineStats{
		TotalRules:     rs.Total,
		EnabledRules:   rs.Enabled,
		TrackedIPs:     e.state.TrackedIPs(),
		ActivePatterns: e.state.Buckets(),
	}
}
