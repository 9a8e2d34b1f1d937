package rules

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"logsentry/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, doc string) (*Engine, *Store, *CorrelationState) {
	t.Helper()
	store, state := newTestStore()
	_, err := store.Load(strings.NewReader(doc))
	require.NoError(t, err)
	return NewEngine(store, state, nil, testLogger()), store, state
}

func event(offset time.Duration, ip, msg string) model.LogEvent {
	return model.LogEvent{Timestamp: t0.Add(offset), SourceIP: ip, Message: msg, LogType: "auth"}
}

const bruteForceRule = `
- rule_name: brute_force
  condition_type: substring
  condition: failed login
  severity: high
  threshold: 3
  time_window: 60
  priority: 5
`

func TestEngineThresholdFiresOnce(t *testing.T) {
	engine, _, _ := newTestEngine(t, bruteForceRule)

	assert.Empty(t, engine.Check(event(0, "10.0.0.5", "Failed login attempt")))
	assert.Empty(t, engine.Check(event(10*time.Second, "10.0.0.5", "Failed login attempt")))

	alerts := engine.Check(event(20*time.Second, "10.0.0.5", "Failed login attempt"))
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, "brute_force", a.RuleName)
	assert.Equal(t, model.SeverityHigh, a.Severity)
	assert.Equal(t, "10.0.0.5", a.SourceIP)
	assert.Equal(t, t0.Add(20*time.Second), a.Timestamp)
	assert.Equal(t, "Rule 'brute_force' triggered from 10.0.0.5 (3 events in 60s)", a.Description)
	assert.Zero(t, a.ID)
	assert.False(t, a.Acknowledged)
}

func TestEngineResetAfterFiring(t *testing.T) {
	engine, _, state := newTestEngine(t, bruteForceRule)

	for _, off := range []time.Duration{0, 10 * time.Second, 20 * time.Second} {
		engine.Check(event(off, "10.0.0.5", "failed login"))
	}
	assert.Equal(t, 1, state.Count("brute_force", "10.0.0.5"))

	assert.Empty(t, engine.Check(event(25*time.Second, "10.0.0.5", "failed login")))
	assert.Equal(t, 2, state.Count("brute_force", "10.0.0.5"))

	alerts := engine.Check(event(30*time.Second, "10.0.0.5", "failed login"))
	assert.Len(t, alerts, 1)
}

func TestEngineWindowExcludesOldEvents(t *testing.T) {
	engine, _, _ := newTestEngine(t, `
- rule_name: pair
  condition: denied
  threshold: 2
  time_window: 60
`)

	assert.Empty(t, engine.Check(event(0, "1.2.3.4", "access denied")))
	assert.Empty(t, engine.Check(event(100*time.Second, "1.2.3.4", "access denied")))
	assert.Len(t, engine.Check(event(150*time.Second, "1.2.3.4", "access denied")), 1)
}

func TestEngineWindowBoundaryIsExclusive(t *testing.T) {
	engine, _, _ := newTestEngine(t, `
- rule_name: pair
  condition: denied
  threshold: 2
  time_window: 60
`)

	engine.Check(event(0, "1.2.3.4", "denied"))
	assert.Empty(t, engine.Check(event(60*time.Second, "1.2.3.4", "denied")))
}

func TestEngineIPsAreIndependent(t *testing.T) {
	engine, _, _ := newTestEngine(t, bruteForceRule)

	for i := 0; i < 2; i++ {
		engine.Check(event(time.Duration(i)*time.Second, "10.0.0.1", "failed login"))
		engine.Check(event(time.Duration(i)*time.Second, "10.0.0.2", "failed login"))
	}
	alerts := engine.Check(event(5*time.Second, "10.0.0.1", "failed login"))
	require.Len(t, alerts, 1)
	assert.Equal(t, "10.0.0.1", alerts[0].SourceIP)
}

func TestEngineConditionTypes(t *testing.T) {
	engine, _, _ := newTestEngine(t, `
- rule_name: sqli
  condition_type: regex
  pattern: '(?i)union\s+select'
  severity: critical
- rule_name: exact_root
  condition_type: exact
  condition: Root Login
- rule_name: substring_sudo
  condition: SUDO
`)

	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{"regex case insensitive", "GET /?q=1 UNION SELECT password FROM users", []string{"sqli"}},
		{"regex whitespace", "union\tselect", []string{"sqli"}},
		{"exact ignores case", "root login", []string{"exact_root"}},
		{"exact needs whole message", "root login failed", nil},
		{"substring ignores case", "user ran sudo rm", []string{"substring_sudo"}},
		{"no match", "hello world", nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := engine.Check(event(time.Duration(i)*time.Minute, "192.168.1.1", tt.message))
			var got []string
			for _, a := range alerts {
				got = append(got, a.RuleName)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngineRegexFiresOnFirstOccurrence(t *testing.T) {
	engine, _, _ := newTestEngine(t, `
- rule_name: sqli
  condition_type: regex
  pattern: '(?i)union\s+select'
  threshold: 1
  severity: critical
  description: SQL injection attempt
`)

	alerts := engine.Check(event(0, "203.0.113.9", "... UNION SELECT password FROM users"))
	require.Len(t, alerts, 1)
	assert.Equal(t, "SQL injection attempt from 203.0.113.9", alerts[0].Description)
}

func TestEnginePriorityOrdering(t *testing.T) {
	engine, _, _ := newTestEngine(t, `
- rule_name: low_urgency
  condition: attack
  priority: 5
- rule_name: urgent
  condition: attack
  priority: 1
- rule_name: also_low
  condition: attack
  priority: 5
- rule_name: middle
  condition: attack
  priority: 3
`)

	alerts := engine.Check(event(0, "8.8.8.8", "attack detected"))
	require.Len(t, alerts, 4)
	var names []string
	for _, a := range alerts {
		names = append(names, a.RuleName)
	}
	assert.Equal(t, []string{"urgent", "middle", "low_urgency", "also_low"}, names)
}

func TestEngineDescriptionTemplate(t *testing.T) {
	engine, _, _ := newTestEngine(t, `
- rule_name: tmpl
  condition: scan
  threshold: 2
  time_window: 30
  description: "Port scan by {{.SourceIP}} ({{.RuleName}})"
`)

	engine.Check(event(0, "9.9.9.9", "scan"))
	alerts := engine.Check(event(time.Second, "9.9.9.9", "scan"))
	require.Len(t, alerts, 1)
	assert.Equal(t, "Port scan by 9.9.9.9 (tmpl) (2 events in 30s)", alerts[0].Description)
}

func TestEngineDescriptionDefaults(t *testing.T) {
	engine, _, _ := newTestEngine(t, `
- rule_name: absent
  condition: knock
- rule_name: blank
  condition: knock
  description: ""
  priority: 6
`)

	alerts := engine.Check(event(0, "7.7.7.7", "knock"))
	require.Len(t, alerts, 2)
	assert.Equal(t, "Rule 'absent' triggered from 7.7.7.7", alerts[0].Description)
	assert.Equal(t, " from 7.7.7.7", alerts[1].Description)
}

func TestEngineIgnoresDisabledRules(t *testing.T) {
	engine, store, _ := newTestEngine(t, bruteForceRule)

	_, err := store.Update(1, model.RulePatch{Enabled: boolPtr(false), Threshold: intPtr(1)})
	require.NoError(t, err)
	assert.Empty(t, engine.Check(event(0, "10.0.0.5", "failed login")))
}

func TestEngineScenarioBruteForce(t *testing.T) {
	engine, _, _ := newTestEngine(t, bruteForceRule)

	var fired []model.Alert
	for _, off := range []time.Duration{0, 10 * time.Second, 20 * time.Second} {
		fired = append(fired, engine.Check(event(off, "10.0.0.5", "Failed login attempt"))...)
	}
	require.Len(t, fired, 1)
	assert.Equal(t, t0.Add(20*time.Second), fired[0].Timestamp)
	assert.Equal(t, model.SeverityHigh, fired[0].Severity)
}

func TestEngineConcurrentChecksDoNotLoseUpdates(t *testing.T) {
	engine, _, _ := newTestEngine(t, `
- rule_name: flood
  condition: ping
  threshold: 10
  time_window: 3600
`)

	const (
		ips       = 8
		perIP     = 200
		threshold = 10
	)

	// The firing event stays in the window, so later firings need threshold-1 more events.
	expected, window := 0, 0
	for n := 0; n < perIP; n++ {
		window++
		if window >= threshold {
			expected++
			window = 1
		}
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = make(map[string]int)
	)
	for i := 0; i < ips; i++ {
		ip := fmt.Sprintf("10.1.0.%d", i)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < perIP/4; n++ {
					alerts := engine.Check(event(time.Second, ip, "ping"))
					mu.Lock()
					counts[ip] += len(alerts)
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()

	require.Len(t, counts, ips)
	for ip, n := range counts {
		assert.Equal(t, expected, n, ip)
	}
}

func TestEngineStats(t *testing.T) {
	engine, _, _ := newTestEngine(t, bruteForceRule+`
- rule_name: other
  condition: x
  enabled: false
`)

	engine.Check(event(0, "1.1.1.1", "failed login"))
	engine.Check(event(0, "2.2.2.2", "failed login"))

	assert.Equal(t, EngineStats{
		TotalRules:     2,
		EnabledRules:   1,
		TrackedIPs:     2,
		ActivePatterns: 2,
	}, engine.Stats())
}
