package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"logsentry/internal/model"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const kafkaWriteTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers    string
	Topic      string
	Severities []model.Severity
}

// KafkaNotifier publishes alerts as JSON records keyed by source IP, so
// all alerts for one address land on the same partition.
type KafkaNotifier struct {
	Policy

	topic  string
	writer messageWriter
	logger *logrus.Logger
}

func NewKafkaNotifier(cfg KafkaConfig, logger *logrus.Logger) *KafkaNotifier {
	var brokers []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	kn := &KafkaNotifier{
		Policy: Policy{Enabled: true, Severities: cfg.Severities},
		topic:  cfg.Topic,
		logger: logger,
	}
	if len(brokers) == 0 || cfg.Topic == "" {
		logger.Warn("Kafka notifications not configured: missing brokers or topic")
		kn.Enabled = false
		return kn
	}

	kn.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: kafkaWriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	logger.Infof("Kafka notifier configured: brokers=%v topic=%s", brokers, cfg.Topic)
	return kn
}

func newKafkaNotifierWithWriter(topic string, w messageWriter, logger *logrus.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		Policy: Policy{Enabled: true},
		topic:  topic,
		writer: w,
		logger: logger,
	}
}

func (kn *KafkaNotifier) Name() string {
	return "kafka"
}

func (kn *KafkaNotifier) Send(ctx context.Context, alert model.Alert) error {
	if !kn.Enabled || kn.writer == nil {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(genericPayload(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(alert.SourceIP),
		Value: payload,
		Time:  alert.Timestamp,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(alert.Severity)},
			{Key: "rule_name", Value: []byte(alert.RuleName)},
		},
	}
	if err := kn.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to kafka topic %s: %w", kn.topic, err)
	}

	kn.logger.Debugf("Published alert %s to kafka topic %s", alert.RuleName, kn.topic)
	return nil
}

func (kn *KafkaNotifier) Close() error {
	if kn.writer == nil {
		return nil
	}
	return kn.writer.Close()
}
