package pipeline

import (
	"context"
	"sync"
	"time"

	"logsentry/internal/alert"
	"logsentry/internal/broadcast"
	"logsentry/internal/cache"
	"logsentry/internal/model"
	"logsentry/internal/rules"
	"logsentry/internal/storage"

	"github.com/sirupsen/logrus"
)

// Processor stores ingested logs, evaluates rules on them and fans out the
// resulting alerts to live subscribers and notification channels.
type Processor struct {
	engine     *rules.Engine
	storage    *storage.Storage
	hub        *broadcast.Hub
	dispatcher *alert.Dispatcher
	cache      *cache.StatsCache
	anomaly    *rules.AnomalyDetector
	logger     *logrus.Logger
	wg         sync.WaitGroup
}

type Option func(*Processor)

// WithAnomalyDetector records every event and logs detected anomalies.
func WithAnomalyDetector(d *rules.AnomalyDetector) Option {
	return func(p *Processor) {
		p.anomaly = d
	}
}

func NewProcessor(engine *rules.Engine, store *storage.Storage, hub *broadcast.Hub, dispatcher *alert.Dispatcher, statsCache *cache.StatsCache, logger *logrus.Logger, opts ...Option) *Processor {
	p := &Processor{
		engine:     engine,
		storage:    store,
		hub:        hub,
		dispatcher: dispatcher,
		cache:      statsCache,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest stores ev and evaluates it against the rules before returning, so
// events from one source are correlated in submission order. Live broadcast
// and notification delivery continue in the background independently of
// each other. The returned event carries its assigned ID.
func (p *Processor) Ingest(ctx context.Context, ev model.LogEvent) model.LogEvent {
	stored := p.storage.AddLog(ev)
	p.recordAnomaly(stored)

	alerts := p.engine.Check(stored)
	for i := range alerts {
		alerts[i] = p.storage.AddAlert(alerts[i])
	}

	bg := context.WithoutCancel(ctx)
	p.spawn(func() { p.invalidateStats(bg) })
	p.spawn(func() { p.broadcast(bg, stored, alerts) })
	if len(alerts) > 0 {
		p.spawn(func() { p.notify(bg, alerts) })
	}
	return stored
}

func (p *Processor) spawn(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

func (p *Processor) recordAnomaly(ev model.LogEvent) {
	if p.anomaly == nil {
		return
	}
	p.anomaly.Record(ev.SourceIP, ev.Timestamp)
	if a := p.anomaly.Detect(ev.SourceIP, ev.Timestamp); a != nil {
		p.logger.WithFields(logrus.Fields{
			"source_ip":   a.SourceIP,
			"event_count": a.EventCount,
		}).Warnf("Anomaly detected: %s", a.Description)
	}
}

// broadcast keeps the log ahead of its alerts for every subscriber.
func (p *Processor) broadcast(ctx context.Context, ev model.LogEvent, alerts []model.Alert) {
	p.hub.BroadcastLog(ctx, ev)
	for _, a := range alerts {
		p.hub.BroadcastAlert(ctx, a)
	}
}

func (p *Processor) notify(ctx context.Context, alerts []model.Alert) {
	for _, a := range alerts {
		results := p.dispatcher.Dispatch(ctx, a)
		p.logger.WithFields(logrus.Fields{
			"alert_id": a.ID,
			"rule":     a.RuleName,
			"severity": a.Severity,
		}).Debugf("Notification results: %v", results)
	}
}

// Acknowledge marks an alert as handled.
func (p *Processor) Acknowledge(ctx context.Context, id int64) (model.Alert, error) {
	a, err := p.storage.Acknowledge(id)
	if err != nil {
		return model.Alert{}, err
	}
	p.invalidateStats(ctx)
	return a, nil
}

// Wait blocks until all background deliveries finish or ctx expires.
func (p *Processor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) invalidateStats(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.cache.Invalidate(ctx); err != nil {
		p.logger.Warnf("Failed to invalidate stats cache: %v", err)
	}
}
