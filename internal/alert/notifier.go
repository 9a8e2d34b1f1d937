package alert

import (
	"context"
	"errors"

	"logsentry/internal/model"
)

var (
	ErrHandlerExists = errors.New("notification handler already registered")
	ErrNotConfigured = errors.New("notification handler is not configured")
)

// Handler delivers alerts to one notification channel.
type Handler interface {
	Name() string
	ShouldNotify(alert model.Alert) bool
	Send(ctx context.Context, alert model.Alert) error
}

// DefaultSeverities are the severities notified when a policy lists none.
var DefaultSeverities = []model.Severity{model.SeverityHigh, model.SeverityCritical}

// Policy is the shared ShouldNotify implementation embedded by handlers.
type Policy struct {
	Enabled    bool
	Severities []model.Severity
}

func DefaultPolicy() Policy {
	return Policy{Enabled: true}
}

func (p Policy) ShouldNotify(alert model.Alert) bool {
	if !p.Enabled {
		return false
	}
	severities := p.Severities
	if len(severities) == 0 {
		severities = DefaultSeverities
	}
	for _, s := range severities {
		if s == alert.Severity {
			return true
		}
	}
	return false
}

// SeverityColor is the hex color used for a severity in rich messages.
func SeverityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "#dc2626"
	case model.SeverityHigh:
		return "#ea580c"
	case model.SeverityMedium:
		return "#ca8a04"
	case model.SeverityLow:
		return "#2563eb"
	default:
		return "#6b7280"
	}
}
