package utils

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Rules         RulesConfig         `yaml:"rules"`
	Correlation   CorrelationConfig   `yaml:"correlation"`
	Anomaly       AnomalyConfig       `yaml:"anomaly"`
	Broadcast     BroadcastConfig     `yaml:"broadcast"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Redis         RedisConfig         `yaml:"redis"`
	Storage       StorageConfig       `yaml:"storage"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Addr                   string   `yaml:"addr"`
	ReadTimeoutSeconds     int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
}

type RulesConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

type CorrelationConfig struct {
	RegexTimeoutMs int `yaml:"regex_timeout_ms"`
}

type AnomalyConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxTrackedIPs int  `yaml:"max_tracked_ips"`
	MaxHistory    int  `yaml:"max_history"`
}

type BroadcastConfig struct {
	SendTimeoutSeconds  int `yaml:"send_timeout_seconds"`
	PingIntervalSeconds int `yaml:"ping_interval_seconds"`
}

type NotificationsConfig struct {
	TimeoutSeconds int            `yaml:"timeout_seconds"`
	Log            bool           `yaml:"log"`
	Email          EmailConfig    `yaml:"email"`
	Webhook        WebhookConfig  `yaml:"webhook"`
	Telegram       TelegramConfig `yaml:"telegram"`
	Kafka          KafkaConfig    `yaml:"kafka"`
}

type EmailConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Provider     string   `yaml:"provider"`
	SMTPServer   string   `yaml:"smtp_server"`
	SMTPPort     int      `yaml:"smtp_port"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	From         string   `yaml:"from"`
	Recipients   []string `yaml:"recipients"`
	ResendAPIKey string   `yaml:"resend_api_key"`
	Severities   []string `yaml:"severities"`
}

type WebhookConfig struct {
	Enabled    bool     `yaml:"enabled"`
	URL        string   `yaml:"url"`
	Type       string   `yaml:"type"`
	Severities []string `yaml:"severities"`
}

type TelegramConfig struct {
	Enabled         bool     `yaml:"enabled"`
	BotToken        string   `yaml:"bot_token"`
	ChatID          string   `yaml:"chat_id"`
	ParseMode       string   `yaml:"parse_mode"`
	MessageTemplate string   `yaml:"message_template,omitempty"`
	Severities      []string `yaml:"severities"`
}

type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    string   `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	Severities []string `yaml:"severities"`
}

type RedisConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	StatsTTLSeconds int    `yaml:"stats_ttl_seconds"`
}

type StorageConfig struct {
	MaxLogs   int `yaml:"max_logs"`
	MaxAlerts int `yaml:"max_alerts"`
}

type MetricsConfig struct {
	// Addr starts a dedicated exporter when set; /metrics is always served by the API.
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	cfg := &Config{
		Rules: RulesConfig{
			File:  "configs/rules.yaml",
			Watch: true,
		},
		Notifications: NotificationsConfig{
			Log: true,
		},
	}
	_ = cfg.Validate()
	return cfg
}
