package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"logsentry/internal/metrics"
	"logsentry/internal/model"

	"github.com/sirupsen/logrus"
)

const DefaultDispatchTimeout = 10 * time.Second

// Dispatcher fans an alert out to every registered handler whose policy
// accepts it. Each handler runs in isolation with its own timeout.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

func NewDispatcher(timeout time.Duration, m *metrics.Metrics, logger *logrus.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &Dispatcher{
		handlers: make([]Handler, 0),
		timeout:  timeout,
		metrics:  m,
		logger:   logger,
	}
}

func (d *Dispatcher) RegisterHandler(h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.handlers {
		if existing.Name() == h.Name() {
			return fmt.Errorf("%w: %s", ErrHandlerExists, h.Name())
		}
	}
	d.handlers = append(d.handlers, h)
	d.logger.Infof("Registered notification handler: %s", h.Name())
	return nil
}

// Handlers returns the registered handler names in registration order.
func (d *Dispatcher) Handlers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, len(d.handlers))
	for i, h := range d.handlers {
		names[i] = h.Name()
	}
	return names
}

// Dispatch delivers alert to all qualifying handlers concurrently and
// reports each handler's outcome. Handlers that decline the alert are not
// present in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.Alert) map[string]bool {
	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	results := make(map[string]bool)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, h := range handlers {
		if !d.shouldNotify(h, alert) {
			continue
		}
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			ok := d.send(ctx, h, alert)
			mu.Lock()
			results[h.Name()] = ok
			mu.Unlock()
		}(h)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) shouldNotify(h Handler, alert model.Alert) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("Handler %s panicked in ShouldNotify: %v", h.Name(), r)
			ok = false
		}
	}()
	return h.ShouldNotify(alert)
}

// send bounds the handler by the dispatch timeout even when it ignores ctx.
func (d *Dispatcher) send(ctx context.Context, h Handler, alert model.Alert) bool {
	log := d.logger.WithFields(logrus.Fields{
		"handler":  h.Name(),
		"rule":     alert.RuleName,
		"severity": alert.Severity,
	})

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panicked: %v", r)
			}
		}()
		done <- h.Send(sendCtx, alert)
	}()

	var err error
	select {
	case err = <-done:
	case <-sendCtx.Done():
		err = fmt.Errorf("notification timed out: %w", sendCtx.Err())
	}

	d.metrics.Notification(h.Name(), err == nil)
	if err != nil {
		log.Errorf("Failed to send alert: %v", err)
		return false
	}
	log.Debug("Alert notification sent")
	return true
}
