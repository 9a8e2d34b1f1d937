package alert

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"logsentry/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeHandler struct {
	Policy
	name  string
	err   error
	panic bool
	block bool
	calls atomic.Int32
}

func newFakeHandler(name string) *fakeHandler {
	return &fakeHandler{Policy: DefaultPolicy(), name: name}
}

func (f *fakeHandler) Name() string { return f.name }

func (f *fakeHandler) Send(ctx context.Context, _ model.Alert) error {
	f.calls.Add(1)
	if f.panic {
		panic("boom")
	}
	if f.block {
		select {}
	}
	return f.err
}

func sampleAlert(sev model.Severity) model.Alert {
	return model.Alert{
		ID:          7,
		Timestamp:   time.Date(2024, 3, 1, 9, 0, 20, 0, time.UTC),
		RuleName:    "brute_force",
		Severity:    sev,
		Description: "Multiple failed logins from 10.0.0.5",
		SourceIP:    "10.0.0.5",
	}
}

func TestPolicyDefaultSeverities(t *testing.T) {
	p := DefaultPolicy()
	assert.False(t, p.ShouldNotify(sampleAlert(model.SeverityLow)))
	assert.False(t, p.ShouldNotify(sampleAlert(model.SeverityMedium)))
	assert.True(t, p.ShouldNotify(sampleAlert(model.SeverityHigh)))
	assert.True(t, p.ShouldNotify(sampleAlert(model.SeverityCritical)))

	p.Enabled = false
	assert.False(t, p.ShouldNotify(sampleAlert(model.SeverityCritical)))

	custom := Policy{Enabled: true, Severities: []model.Severity{model.SeverityLow}}
	assert.True(t, custom.ShouldNotify(sampleAlert(model.SeverityLow)))
	assert.False(t, custom.ShouldNotify(sampleAlert(model.SeverityCritical)))
}

func TestDispatcherRejectsDuplicateNames(t *testing.T) {
	d := NewDispatcher(time.Second, nil, testLogger())
	require.NoError(t, d.RegisterHandler(newFakeHandler("email")))
	err := d.RegisterHandler(newFakeHandler("email"))
	assert.ErrorIs(t, err, ErrHandlerExists)
	assert.Equal(t, []string{"email"}, d.Handlers())
}

func TestDispatcherIsolatesFailures(t *testing.T) {
	d := NewDispatcher(time.Second, nil, testLogger())

	ok := newFakeHandler("ok")
	failing := newFakeHandler("failing")
	failing.err = errors.New("smtp down")
	panicking := newFakeHandler("panicking")
	panicking.panic = true

	for _, h := range []Handler{ok, failing, panicking} {
		require.NoError(t, d.RegisterHandler(h))
	}

	results := d.Dispatch(context.Background(), sampleAlert(model.SeverityCritical))
	assert.Equal(t, map[string]bool{"ok": true, "failing": false, "panicking": false}, results)
	assert.EqualValues(t, 1, ok.calls.Load())
}

func TestDispatcherSkipsNonQualifyingHandlers(t *testing.T) {
	d := NewDispatcher(time.Second, nil, testLogger())
	strict := newFakeHandler("strict")
	require.NoError(t, d.RegisterHandler(strict))
	require.NoError(t, d.RegisterHandler(NewLogAlertNotifier(testLogger())))

	results := d.Dispatch(context.Background(), sampleAlert(model.SeverityLow))
	assert.Equal(t, map[string]bool{"log": true}, results)
	assert.Zero(t, strict.calls.Load())
}

func TestDispatcherTimesOutBlockedHandler(t *testing.T) {
	d := NewDispatcher(50*time.Millisecond, nil, testLogger())
	stuck := newFakeHandler("stuck")
	stuck.block = true
	fast := newFakeHandler("fast")
	require.NoError(t, d.RegisterHandler(stuck))
	require.NoError(t, d.RegisterHandler(fast))

	start := time.Now()
	results := d.Dispatch(context.Background(), sampleAlert(model.SeverityHigh))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, map[string]bool{"stuck": false, "fast": true}, results)
}

func TestDispatcherNoHandlers(t *testing.T) {
	d := NewDispatcher(0, nil, testLogger())
	assert.Empty(t, d.Dispatch(context.Background(), sampleAlert(model.SeverityHigh)))
}
