package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"logsentry/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSendsDefaultMessage(t *testing.T) {
	var got TelegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(TelegramResponse{OK: true})
	}))
	defer srv.Close()

	tn := NewTelegramNotifier(TelegramConfig{BotToken: "token", ChatID: "42", ParseMode: "Markdown"}, testLogger())
	tn.apiBaseURL = srv.URL

	require.NoError(t, tn.Send(context.Background(), sampleAlert(model.SeverityCritical)))
	assert.Equal(t, "42", got.ChatID)
	assert.Empty(t, got.ParseMode)
	assert.Contains(t, got.Text, "ALERT FIRING: brute_force")
	assert.Contains(t, got.Text, "severity: CRITICAL")
}

func TestTelegramTemplate(t *testing.T) {
	tn := NewTelegramNotifier(TelegramConfig{
		BotToken:        "token",
		ChatID:          "42",
		MessageTemplate: `{{.RuleName}} {{upper (printf "%s" .Severity)}} {{formatTime .Timestamp "15:04"}}`,
	}, testLogger())

	assert.Equal(t, "brute_force HIGH 09:00", tn.formatAlertMessage(sampleAlert(model.SeverityHigh)))
}

func TestTelegramRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(TelegramResponse{OK: false, Description: "chat not found"})
	}))
	defer srv.Close()

	tn := NewTelegramNotifier(TelegramConfig{BotToken: "token", ChatID: "42"}, testLogger())
	tn.apiBaseURL = srv.URL
	tn.retryDelay = time.Millisecond

	err := tn.Send(context.Background(), sampleAlert(model.SeverityHigh))
	assert.ErrorContains(t, err, "chat not found")
	assert.EqualValues(t, 3, calls.Load())
}

func TestTelegramDisabledWithoutToken(t *testing.T) {
	tn := NewTelegramNotifier(TelegramConfig{ChatID: "42"}, testLogger())
	assert.False(t, tn.ShouldNotify(sampleAlert(model.SeverityCritical)))
	assert.ErrorIs(t, tn.Send(context.Background(), sampleAlert(model.SeverityCritical)), ErrNotConfigured)
}
