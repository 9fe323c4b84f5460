package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"invoice-intake/internal/config"
	"invoice-intake/internal/constants"
	"invoice-intake/internal/ingestion"
	"invoice-intake/internal/logger"
	"invoice-intake/pkg/metrics"
)

// AlertPublisher writes failure events to the ops alert topic.
type AlertPublisher struct {
	writer  *kafka.Writer
	topic   string
	retries uint64
	maxWait time.Duration
	logger  logger.Logger
}

func NewAlertPublisher(cfg config.KafkaConfig, log logger.Logger) *AlertPublisher {
	topic := cfg.AlertTopic
	if topic == "" {
		topic = constants.DefaultAlertTopic
	}

	retries := uint64(3)
	if cfg.MaxRetries > 0 {
		retries = uint64(cfg.MaxRetries)
	}

	maxWait := 5 * time.Second
	if cfg.RetryMaxSec > 0 {
		maxWait = time.Duration(cfg.RetryMaxSec) * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}

	return &AlertPublisher{
		writer:  w,
		topic:   topic,
		retries: retries,
		maxWait: maxWait,
		logger:  log,
	}
}

// Publish writes one failure event, retrying transient broker errors with
// exponential backoff.
func (p *AlertPublisher) Publish(ctx context.Context, event ingestion.FailureEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal failure event: %w", err)
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.Source),
		Value: body,
		Time:  time.Now(),
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponentialBackoff(p.maxWait), p.retries),
		ctx,
	)

	err = backoff.Retry(func() error {
		return p.writer.WriteMessages(ctx, msg)
	}, policy)
	if err != nil {
		metrics.AlertPublishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write alert message: %w", err)
	}

	metrics.AlertPublishTotal.WithLabelValues("published").Inc()
	return nil
}

func (p *AlertPublisher) Close() error {
	return p.writer.Close()
}

func newExponentialBackoff(maxWait time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxWait
	b.MaxElapsedTime = 0
	return b
}

// PublishingAlertSink decorates an alert sink with Kafka publishing. The
// wrapped sink stays authoritative: recording failures is fatal, a publish
// failure is only logged so a broker outage cannot mask the failure feed.
type PublishingAlertSink struct {
	sink      ingestion.AlertSink
	publisher *AlertPublisher
	logger    logger.Logger
}

func NewPublishingAlertSink(sink ingestion.AlertSink, publisher *AlertPublisher, log logger.Logger) *PublishingAlertSink {
	return &PublishingAlertSink{
		sink:      sink,
		publisher: publisher,
		logger:    log,
	}
}

func (s *PublishingAlertSink) NotifyFailure(ctx context.Context, event ingestion.FailureEvent) error {
	if err := s.sink.NotifyFailure(ctx, event); err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish failure event to alert topic",
			"source", string(event.Source),
			"error_type", event.ErrorType,
			"error", err,
		)
	}

	return nil
}

func (s *PublishingAlertSink) ListFailures(ctx context.Context) ([]ingestion.FailureEvent, error) {
	return s.sink.ListFailures(ctx)
}
