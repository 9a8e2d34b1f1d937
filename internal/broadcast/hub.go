package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"logsentry/internal/metrics"
	"logsentry/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type MessageType string

const (
	MessageNewLog      MessageType = "new_log"
	MessageNewAlert    MessageType = "new_alert"
	MessageStatsUpdate MessageType = "stats_update"
	MessageConnected   MessageType = "connected"
)

const DefaultSendTimeout = 5 * time.Second

// Envelope is the wire format of every message pushed to subscribers.
type Envelope struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conn is the transport behind a subscriber. Send must honor the context
// deadline; Close must unblock a pending Send.
type Conn interface {
	Send(ctx context.Context, msg Envelope) error
	Close() error
}

type Subscriber struct {
	ID          string
	ConnectedAt time.Time

	conn      Conn
	sendMu    sync.Mutex
	sent      atomic.Int64
	closeOnce sync.Once
}

func (s *Subscriber) MessagesSent() int64 {
	return s.sent.Load()
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

type Stats struct {
	ActiveConnections int   `json:"active_connections"`
	TotalMessagesSent int64 `json:"total_messages_sent"`
}

// Hub fans messages out to live subscribers. Broadcast works on a snapshot
// of the registry, so Connect and Disconnect never wait for a slow send.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	sendTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *logrus.Logger
}

func NewHub(sendTimeout time.Duration, m *metrics.Metrics, logger *logrus.Logger) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		sendTimeout: sendTimeout,
		metrics:     m,
		logger:      logger,
	}
}

func (h *Hub) Connect(conn Conn) *Subscriber {
	sub := &Subscriber{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
	}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	n := len(h.subscribers)
	h.mu.Unlock()

	h.metrics.SetSubscribers(n)
	h.logger.Infof("Subscriber %s connected. Total connections: %d", sub.ID, n)
	return sub
}

// Disconnect removes the subscriber and closes its transport. Unknown or
// already removed subscribers are ignored.
func (h *Hub) Disconnect(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	_, ok := h.subscribers[sub.ID]
	delete(h.subscribers, sub.ID)
	n := len(h.subscribers)
	h.mu.Unlock()

	sub.close()
	if ok {
		h.metrics.SetSubscribers(n)
		h.logger.Infof("Subscriber %s disconnected. Total connections: %d", sub.ID, n)
	}
}

// Send delivers a single message to one subscriber.
func (h *Hub) Send(ctx context.Context, sub *Subscriber, msgType MessageType, payload interface{}) error {
	return h.deliver(ctx, sub, h.envelope(msgType, payload))
}

// Broadcast sends payload to every subscriber registered at call time and
// returns the number of successful deliveries. Subscribers whose send fails
// or times out are removed.
func (h *Hub) Broadcast(ctx context.Context, payload interface{}, msgType MessageType) int {
	subs := h.snapshot()
	if len(subs) == 0 {
		return 0
	}

	env := h.envelope(msgType, payload)

	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *Subscriber) {
			defer wg.Done()
			if err := h.deliver(ctx, sub, env); err != nil {
				h.logger.WithFields(logrus.Fields{
					"subscriber": sub.ID,
					"type":       msgType,
				}).Warnf("Dropping subscriber after failed send: %v", err)
				h.metrics.SubscriberDropped()
				h.Disconnect(sub)
				return
			}
			delivered.Add(1)
		}(sub)
	}
	wg.Wait()

	n := int(delivered.Load())
	h.metrics.Broadcast(string(msgType), n)
	return n
}

func (h *Hub) BroadcastLog(ctx context.Context, ev model.LogEvent) int {
	return h.Broadcast(ctx, ev, MessageNewLog)
}

func (h *Hub) BroadcastAlert(ctx context.Context, alert model.Alert) int {
	return h.Broadcast(ctx, alert, MessageNewAlert)
}

func (h *Hub) BroadcastStats(ctx context.Context, stats interface{}) int {
	return h.Broadcast(ctx, stats, MessageStatsUpdate)
}

// GetStats reports active connections and the messages sent to them.
func (h *Hub) GetStats() Stats {
	subs := h.snapshot()
	stats := Stats{ActiveConnections: len(subs)}
	for _, sub := range subs {
		stats.TotalMessagesSent += sub.MessagesSent()
	}
	return stats
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	for _, sub := range h.snapshot() {
		h.Disconnect(sub)
	}
}

func (h *Hub) snapshot() []*Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

func (h *Hub) envelope(msgType MessageType, payload interface{}) Envelope {
	return Envelope{
		Type:      msgType,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}
}

func (h *Hub) deliver(ctx context.Context, sub *Subscriber, env Envelope) error {
	sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		sub.sendMu.Lock()
		defer sub.sendMu.Unlock()
		done <- sub.conn.Send(sendCtx, env)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		sub.sent.Add(1)
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send to %s: %w", sub.ID, sendCtx.Err())
	}
}
