package main

import (
	"fmt"

	"logsentry/internal/alert"
	"logsentry/internal/metrics"
	"logsentry/internal/utils"

	"github.com/sirupsen/logrus"
)

// buildDispatcher registers every enabled notification channel. The
// returned close func releases channel resources such as Kafka writers.
func buildDispatcher(cfg *utils.Config, m *metrics.Metrics, logger *logrus.Logger) (*alert.Dispatcher, func(), error) {
	n := cfg.Notifications
	dispatcher := alert.NewDispatcher(cfg.NotificationTimeout(), m, logger)
	closers := []func() error{}
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warnf("Failed to close notifier: %v", err)
			}
		}
	}

	var handlers []alert.Handler
	if n.Log {
		handlers = append(handlers, alert.NewLogAlertNotifier(logger))
	}

	if n.Email.Enabled {
		sev, err := utils.ParseSeverities(n.Email.Severities)
		if err != nil {
			return nil, closeAll, fmt.Errorf("email: %w", err)
		}
		handlers = append(handlers, alert.NewEmailNotifier(alert.EmailConfig{
			Provider:     n.Email.Provider,
			Host:         n.Email.SMTPServer,
			Port:         n.Email.SMTPPort,
			Username:     n.Email.Username,
			Password:     n.Email.Password,
			From:         n.Email.From,
			Recipients:   n.Email.Recipients,
			ResendAPIKey: n.Email.ResendAPIKey,
			Severities:   sev,
		}, logger))
	}

	if n.Webhook.Enabled {
		sev, err := utils.ParseSeverities(n.Webhook.Severities)
		if err != nil {
			return nil, closeAll, fmt.Errorf("webhook: %w", err)
		}
		handlers = append(handlers, alert.NewWebhookNotifier(alert.WebhookConfig{
			URL:        n.Webhook.URL,
			Type:       n.Webhook.Type,
			Severities: sev,
		}, logger))
	}

	if n.Telegram.Enabled {
		sev, err := utils.ParseSeverities(n.Telegram.Severities)
		if err != nil {
			return nil, closeAll, fmt.Errorf("telegram: %w", err)
		}
		handlers = append(handlers, alert.NewTelegramNotifier(alert.TelegramConfig{
			BotToken:        n.Telegram.BotToken,
			ChatID:          n.Telegram.ChatID,
			ParseMode:       n.Telegram.ParseMode,
			MessageTemplate: n.Telegram.MessageTemplate,
			Severities:      sev,
		}, logger))
	}

	if n.Kafka.Enabled {
		sev, err := utils.ParseSeverities(n.Kafka.Severities)
		if err != nil {
			return nil, closeAll, fmt.Errorf("kafka: %w", err)
		}
		kn := alert.NewKafkaNotifier(alert.KafkaConfig{
			Brokers:    n.Kafka.Brokers,
			Topic:      n.Kafka.Topic,
			Severities: sev,
		}, logger)
		closers = append(closers, kn.Close)
		handlers = append(handlers, kn)
	}

	for _, h := range handlers {
		if err := dispatcher.RegisterHandler(h); err != nil {
			return nil, closeAll, err
		}
	}
	logger.Infof("Registered notification handlers: %v", dispatcher.Handlers())
	return dispatcher, closeAll, nil
}
