package model

import "time"

// LogEvent is a single ingested log line.
type LogEvent struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"source_ip"`
	Message   string    `json:"message"`
	LogType   string    `json:"log_type"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Alert is the output of the correlation engine. ID is zero until the
// alert has been stored.
type Alert struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	RuleName     string    `json:"rule_name"`
	Severity     Severity  `json:"severity"`
	Description  string    `json:"description"`
	SourceIP     string    `json:"source_ip"`
	Priority     int       `json:"-"`
	Acknowledged bool      `json:"acknowledged"`
}

// Anomaly describes unusual per-IP activity.
type Anomaly struct {
	Type            string `json:"type"`
	SourceIP        string `json:"source_ip"`
	EventCount      int    `json:"event_count"`
	TimeWindowHours int    `json:"time_window_hours"`
	Description     string `json:"description"`
}
