package alert

import (
	"context"

	"logsentry/internal/model"

	"github.com/sirupsen/logrus"
)

// LogAlertNotifier writes every alert to the local log, whatever its severity.
type LogAlertNotifier struct {
	logger *logrus.Logger
}

func NewLogAlertNotifier(logger *logrus.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{
		logger: logger,
	}
}

func (ln *LogAlertNotifier) Name() string {
	return "log"
}

func (ln *LogAlertNotifier) ShouldNotify(model.Alert) bool {
	return true
}

func (ln *LogAlertNotifier) Send(_ context.Context, alert model.Alert) error {
	ln.logger.WithFields(logrus.Fields{
		"alert_id":  alert.ID,
		"source_ip": alert.SourceIP,
	}).Warnf("ALERT [%s] %s: %s", alert.Severity, alert.RuleName, alert.Description)
	return nil
}
