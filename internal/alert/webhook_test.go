package alert

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"logsentry/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureServer(t *testing.T, status int) (*httptest.Server, <-chan map[string]interface{}) {
	t.Helper()
	bodies := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(data, &body))
		bodies <- body
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, bodies
}

func TestWebhookSlackPayload(t *testing.T) {
	srv, bodies := captureServer(t, http.StatusOK)
	wn := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Type: "slack"}, testLogger())

	require.NoError(t, wn.Send(context.Background(), sampleAlert(model.SeverityCritical)))

	body := <-bodies
	assert.Equal(t, "*LogSentry Security Alert*", body["text"])
	attachments := body["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]interface{})
	assert.Equal(t, "#dc2626", att["color"])
	assert.Equal(t, "LogSentry SIEM", att["footer"])

	fields := att["fields"].([]interface{})
	require.Len(t, fields, 5)
	sev := fields[1].(map[string]interface{})
	assert.Equal(t, "Severity", sev["title"])
	assert.Equal(t, "CRITICAL", sev["value"])
	assert.Equal(t, true, sev["short"])
}

func TestWebhookDiscordPayload(t *testing.T) {
	srv, bodies := captureServer(t, http.StatusNoContent)
	wn := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Type: "Discord"}, testLogger())

	require.NoError(t, wn.Send(context.Background(), sampleAlert(model.SeverityHigh)))

	body := <-bodies
	embeds := body["embeds"].([]interface{})
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]interface{})
	assert.Equal(t, "Security Alert: brute_force", embed["title"])
	assert.EqualValues(t, 15366164, embed["color"])
	assert.Len(t, embed["fields"], 3)
}

func TestWebhookGenericPayload(t *testing.T) {
	srv, bodies := captureServer(t, http.StatusAccepted)
	wn := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Type: "generic"}, testLogger())

	require.NoError(t, wn.Send(context.Background(), sampleAlert(model.SeverityHigh)))

	body := <-bodies
	assert.Equal(t, "security_alert", body["type"])
	assert.Equal(t, "logsentry", body["source"])
	assert.Equal(t, "2.0", body["version"])
	a := body["alert"].(map[string]interface{})
	assert.Equal(t, "brute_force", a["rule_name"])
	assert.Equal(t, "10.0.0.5", a["source_ip"])
}

func TestWebhookNon2xxFails(t *testing.T) {
	srv, _ := captureServer(t, http.StatusInternalServerError)
	wn := NewWebhookNotifier(WebhookConfig{URL: srv.URL}, testLogger())

	err := wn.Send(context.Background(), sampleAlert(model.SeverityHigh))
	assert.ErrorContains(t, err, "status 500")
}

func TestWebhookDisabledWithoutURL(t *testing.T) {
	wn := NewWebhookNotifier(WebhookConfig{}, testLogger())
	assert.False(t, wn.ShouldNotify(sampleAlert(model.SeverityCritical)))
	assert.ErrorIs(t, wn.Send(context.Background(), sampleAlert(model.SeverityCritical)), ErrNotConfigured)
}
