package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "logsentry"

// Metrics groups the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	EventsChecked prometheus.Counter
	CheckDuration prometheus.Histogram
	AlertsFired   *prometheus.CounterVec

	Notifications *prometheus.CounterVec

	BroadcastMessages  *prometheus.CounterVec
	Subscribers        prometheus.Gauge
	SubscribersDropped prometheus.Counter

	RuleReloads *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsChecked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_checked_total",
			Help:      "Log events evaluated by the correlation engine",
		}),
		CheckDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Time spent evaluating one event against the active rules",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		AlertsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Alerts produced by the correlation engine",
		}, []string{"rule", "severity"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts by handler and result",
		}, []string{"handler", "result"}),
		BroadcastMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_messages_total",
			Help:      "Messages delivered to live subscribers by message type",
		}, []string{"type"}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Currently connected live subscribers",
		}),
		SubscribersDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_dropped_total",
			Help:      "Subscribers removed after a failed or timed out send",
		}),
		RuleReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_reloads_total",
			Help:      "Rule file reloads by result",
		}, []string{"result"}),
	}
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return registry
}

func (m *Metrics) ObserveCheck(d time.Duration) {
	if m == nil {
		return
	}
	m.EventsChecked.Inc()
	m.CheckDuration.Observe(d.Seconds())
}

func (m *Metrics) AlertFired(rule, severity string) {
	if m == nil {
		return
	}
	m.AlertsFired.WithLabelValues(rule, severity).Inc()
}

func (m *Metrics) Notification(handler string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.Notifications.WithLabelValues(handler, result).Inc()
}

func (m *Metrics) Broadcast(msgType string, delivered int) {
	if m == nil {
		return
	}
	m.BroadcastMessages.WithLabelValues(msgType).Add(float64(delivered))
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

func (m *Metrics) SubscriberDropped() {
	if m == nil {
		return
	}
	m.SubscribersDropped.Inc()
}

func (m *Metrics) RuleReload(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.RuleReloads.WithLabelValues(result).Inc()
}
