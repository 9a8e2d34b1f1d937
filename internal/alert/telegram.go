package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"logsentry/internal/model"

	"github.com/sirupsen/logrus"
)

const telegramAPIBaseURL = "https://api.telegram.org"

type TelegramNotifier struct {
	Policy

	botToken        string
	chatID          string
	parseMode       string
	apiBaseURL      string
	maxRetries      int
	retryDelay      time.Duration
	messageTemplate *template.Template
	client          *http.Client
	logger          *logrus.Logger
}

type TelegramConfig struct {
	BotToken        string
	ChatID          string
	ParseMode       string
	MessageTemplate string
	Severities      []model.Severity
}

type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type TelegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func NewTelegramNotifier(cfg TelegramConfig, logger *logrus.Logger) *TelegramNotifier {
	tn := &TelegramNotifier{
		Policy:     Policy{Enabled: true, Severities: cfg.Severities},
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		parseMode:  cfg.ParseMode,
		apiBaseURL: telegramAPIBaseURL,
		maxRetries: 3,
		retryDelay: time.Second,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}

	if tn.botToken == "" || tn.chatID == "" {
		logger.Warn("Telegram notifications not configured: missing bot token or chat id")
		tn.Enabled = false
	}

	if strings.TrimSpace(cfg.MessageTemplate) != "" {
		funcMap := template.FuncMap{
			"formatTime": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
			"upper": strings.ToUpper,
		}
		tmpl, err := template.New("telegram_message").Funcs(funcMap).Parse(cfg.MessageTemplate)
		if err != nil {
			logger.Warnf("Failed to parse Telegram message template: %v, using default format", err)
		} else {
			tn.messageTemplate = tmpl
		}
	}

	return tn
}

func (tn *TelegramNotifier) Name() string {
	return "telegram"
}

// Send retries with a linear backoff until ctx expires.
func (tn *TelegramNotifier) Send(ctx context.Context, alert model.Alert) error {
	if !tn.Enabled {
		return ErrNotConfigured
	}

	message := tn.formatAlertMessage(alert)

	var lastErr error
	for i := 0; i < tn.maxRetries; i++ {
		lastErr = tn.sendMessage(ctx, message)
		if lastErr == nil {
			return nil
		}

		tn.logger.Warnf("Failed to send alert (attempt %d/%d): %v", i+1, tn.maxRetries, lastErr)

		if i < tn.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * tn.retryDelay):
			}
		}
	}

	return fmt.Errorf("failed to send alert after %d attempts: %w", tn.maxRetries, lastErr)
}

func (tn *TelegramNotifier) formatAlertMessage(alert model.Alert) string {
	if tn.messageTemplate != nil {
		var buf bytes.Buffer
		err := tn.messageTemplate.Execute(&buf, alert)
		if err != nil {
			tn.logger.Warnf("Failed to execute message template: %v, using default format", err)
		} else {
			return buf.String()
		}
	}

	return fmt.Sprintf("ALERT FIRING: %s\n\n"+
		"severity: %s\n"+
		"source_ip: %s\n"+
		"time: %s\n"+
		"description: %s",
		alert.RuleName,
		strings.ToUpper(string(alert.Severity)),
		orDefault(alert.SourceIP, "unknown"),
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		alert.Description)
}

func (tn *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", tn.apiBaseURL, tn.botToken)

	// Markdown modes reject unescaped special characters in rule output.
	parseMode := ""
	if tn.parseMode != "" && tn.parseMode != "Markdown" && tn.parseMode != "MarkdownV2" {
		parseMode = tn.parseMode
	}

	jsonData, err := json.Marshal(TelegramMessage{
		ChatID:    tn.chatID,
		Text:      text,
		ParseMode: parseMode,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var telegramResp TelegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&telegramResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !telegramResp.OK {
		return fmt.Errorf("telegram API error: %s", telegramResp.Description)
	}

	tn.logger.Infof("Alert sent to Telegram successfully")
	return nil
}
