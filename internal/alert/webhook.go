package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"logsentry/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	WebhookSlack   = "slack"
	WebhookDiscord = "discord"
	WebhookGeneric = "generic"

	webhookTimeout = 10 * time.Second
	payloadVersion = "2.0"
	footerText     = "LogSentry SIEM"
)

// WebhookNotifier posts alerts to Slack, Discord or a generic JSON endpoint.
type WebhookNotifier struct {
	Policy

	url         string
	webhookType string
	client      *http.Client
	logger      *logrus.Logger
}

type WebhookConfig struct {
	URL        string
	Type       string
	Severities []model.Severity
}

func NewWebhookNotifier(cfg WebhookConfig, logger *logrus.Logger) *WebhookNotifier {
	wn := &WebhookNotifier{
		Policy:      Policy{Enabled: true, Severities: cfg.Severities},
		url:         cfg.URL,
		webhookType: strings.ToLower(cfg.Type),
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		logger: logger,
	}
	if wn.webhookType == "" {
		wn.webhookType = WebhookSlack
	}
	if wn.url == "" {
		logger.Warn("Webhook notifications not configured: missing URL")
		wn.Enabled = false
	}
	return wn
}

func (wn *WebhookNotifier) Name() string {
	return "webhook"
}

func (wn *WebhookNotifier) Send(ctx context.Context, alert model.Alert) error {
	if !wn.Enabled {
		return ErrNotConfigured
	}

	jsonData, err := json.Marshal(wn.payload(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	wn.logger.Infof("Webhook alert sent (%s): %s", wn.webhookType, alert.RuleName)
	return nil
}

func (wn *WebhookNotifier) payload(alert model.Alert) interface{} {
	switch wn.webhookType {
	case WebhookSlack:
		return slackPayload(alert)
	case WebhookDiscord:
		return discordPayload(alert)
	default:
		return genericPayload(alert)
	}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackPayload(alert model.Alert) slackMessage {
	return slackMessage{
		Text: "*LogSentry Security Alert*",
		Attachments: []slackAttachment{{
			Color: SeverityColor(alert.Severity),
			Fields: []slackField{
				{Title: "Alert", Value: orDefault(alert.RuleName, "Unknown")},
				{Title: "Severity", Value: strings.ToUpper(string(alert.Severity)), Short: true},
				{Title: "Source IP", Value: orDefault(alert.SourceIP, "Unknown"), Short: true},
				{Title: "Description", Value: orDefault(alert.Description, "No description")},
				{Title: "Timestamp", Value: formatTimestamp(alert.Timestamp)},
			},
			Footer: footerText,
			Ts:     unixOrZero(alert.Timestamp),
		}},
	}
}

// Discord embed colors are decimal RGB values.
func discordColor(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 14423100
	case model.SeverityHigh:
		return 15366164
	case model.SeverityMedium:
		return 16767050
	case model.SeverityLow:
		return 2463027
	default:
		return 7037277
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

func discordPayload(alert model.Alert) discordMessage {
	embed := discordEmbed{
		Title:       "Security Alert: " + orDefault(alert.RuleName, "Unknown"),
		Description: orDefault(alert.Description, "No description"),
		Color:       discordColor(alert.Severity),
		Fields: []discordField{
			{Name: "Severity", Value: strings.ToUpper(string(alert.Severity)), Inline: true},
			{Name: "Source IP", Value: orDefault(alert.SourceIP, "Unknown"), Inline: true},
			{Name: "Timestamp", Value: formatTimestamp(alert.Timestamp)},
		},
	}
	embed.Footer.Text = footerText
	return discordMessage{Embeds: []discordEmbed{embed}}
}

type genericMessage struct {
	Type    string      `json:"type"`
	Alert   model.Alert `json:"alert"`
	Source  string      `json:"source"`
	Version string      `json:"version"`
}

func genericPayload(alert model.Alert) genericMessage {
	return genericMessage{
		Type:    "security_alert",
		Alert:   alert,
		Source:  "logsentry",
		Version: payloadVersion,
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
