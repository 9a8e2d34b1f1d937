package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"logsentry/internal/model"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads filename, falling back to DefaultConfig when it does
// not exist. Environment overrides are applied before validation.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = "configs/logsentry.yaml"
	}

	config := DefaultConfig()
	data, err := os.ReadFile(filename)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	default:
		config = &Config{}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config file %s: %w", filename, err)
		}
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// ApplyEnv overrides secrets and channel endpoints from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	email := &c.Notifications.Email
	set(&email.SMTPServer, "SMTP_SERVER")
	set(&email.Username, "SMTP_USERNAME")
	set(&email.Password, "SMTP_PASSWORD")
	set(&email.From, "SMTP_FROM_EMAIL")
	set(&email.ResendAPIKey, "RESEND_API_KEY")
	if v := getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			email.SMTPPort = port
		}
	}
	if v := getenv("ALERT_EMAIL_RECIPIENTS"); v != "" {
		email.Recipients = splitList(v)
	}

	set(&c.Notifications.Webhook.URL, "WEBHOOK_URL")
	set(&c.Notifications.Webhook.Type, "WEBHOOK_TYPE")
	set(&c.Notifications.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	set(&c.Notifications.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	set(&c.Notifications.Kafka.Brokers, "KAFKA_BROKERS")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Logging.Level, "LOG_LEVEL")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 15
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	if c.Rules.File == "" {
		c.Rules.File = "configs/rules.yaml"
	}

	if c.Correlation.RegexTimeoutMs <= 0 {
		c.Correlation.RegexTimeoutMs = 100
	}

	if c.Anomaly.MaxTrackedIPs <= 0 {
		c.Anomaly.MaxTrackedIPs = 10000
	}
	if c.Anomaly.MaxHistory <= 0 {
		c.Anomaly.MaxHistory = 5000
	}

	if c.Broadcast.SendTimeoutSeconds <= 0 {
		c.Broadcast.SendTimeoutSeconds = 5
	}
	if c.Broadcast.PingIntervalSeconds <= 0 {
		c.Broadcast.PingIntervalSeconds = 30
	}

	n := &c.Notifications
	if n.TimeoutSeconds <= 0 {
		n.TimeoutSeconds = 10
	}
	if n.Email.Provider == "" {
		n.Email.Provider = "smtp"
	}
	if n.Email.Provider != "smtp" && n.Email.Provider != "resend" {
		return fmt.Errorf("unknown email provider %q", n.Email.Provider)
	}
	if n.Email.SMTPPort <= 0 {
		n.Email.SMTPPort = 587
	}
	if n.Webhook.Type == "" {
		n.Webhook.Type = "slack"
	}
	n.Webhook.Type = strings.ToLower(n.Webhook.Type)
	switch n.Webhook.Type {
	case "slack", "discord", "generic":
	default:
		return fmt.Errorf("unknown webhook type %q", n.Webhook.Type)
	}
	if n.Kafka.Topic == "" {
		n.Kafka.Topic = "logsentry.alerts"
	}
	for name, list := range map[string][]string{
		"email":    n.Email.Severities,
		"webhook":  n.Webhook.Severities,
		"telegram": n.Telegram.Severities,
		"kafka":    n.Kafka.Severities,
	} {
		if _, err := ParseSeverities(list); err != nil {
			return fmt.Errorf("notifications.%s: %w", name, err)
		}
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.StatsTTLSeconds <= 0 {
		c.Redis.StatsTTLSeconds = 30
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	return nil
}

// ParseSeverities converts a configured allow-list. An empty list yields
// nil, meaning the handler default applies.
func ParseSeverities(list []string) ([]model.Severity, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]model.Severity, 0, len(list))
	for _, s := range list {
		sev := model.ParseSeverity(s)
		if sev.Rank() == 0 {
			return nil, fmt.Errorf("unknown severity %q", s)
		}
		out = append(out, sev)
	}
	return out, nil
}

func (c *Config) RegexTimeout() time.Duration {
	return time.Duration(c.Correlation.RegexTimeoutMs) * time.Millisecond
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Broadcast.SendTimeoutSeconds) * time.Second
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Broadcast.PingIntervalSeconds) * time.Second
}

func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.TimeoutSeconds) * time.Second
}

func (c *Config) StatsTTL() time.Duration {
	return time.Duration(c.Redis.StatsTTLSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
