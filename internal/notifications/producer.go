package notifications

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"adspace/internal/audit"
	"adspace/pkg/logger"

	"github.com/IBM/sarama"
)

// ProducerConfig contains configuration for the booking event producer
type ProducerConfig struct {
	Brokers          []string
	Topic            string
	ClientID         string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

// DefaultProducerConfig returns a default producer configuration
func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "booking-events",
		ClientID:         "adspace",
		RetryMax:         3,
		TimeoutMs:        10000,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000,
	}
}

// NewSaramaConfig builds the sarama settings for the producer
func (pc *ProducerConfig) NewSaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = pc.ClientID

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = pc.RequiredAcks
	saramaConfig.Producer.Compression = pc.CompressionType
	saramaConfig.Producer.Retry.Max = pc.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(pc.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = pc.IdempotentWrites
	saramaConfig.Producer.MaxMessageBytes = pc.MaxMessageBytes

	if pc.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash on booking id so per-booking order survives partitioning
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	return saramaConfig
}

// EventProducer publishes committed timeline rows to Kafka. It is an
// audit.Sink: a batch only counts as delivered when every message was
// acknowledged.
type EventProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logger.Logger
	now      func() time.Time
}

// NewEventProducer dials the brokers and returns a ready producer
func NewEventProducer(config *ProducerConfig, log *logger.Logger) (*EventProducer, error) {
	producer, err := sarama.NewSyncProducer(config.Brokers, config.NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	log.Info("kafka event producer created", "topic", config.Topic, "brokers", config.Brokers)
	return NewEventProducerWith(producer, config.Topic, log), nil
}

// NewEventProducerWith wraps an existing sarama producer
func NewEventProducerWith(producer sarama.SyncProducer, topic string, log *logger.Logger) *EventProducer {
	return &EventProducer{producer: producer, topic: topic, logger: log, now: time.Now}
}

func (p *EventProducer) Name() string { return "kafka" }

// Deliver sends the batch in one request.
func (p *EventProducer) Deliver(ctx context.Context, events []audit.TimelineEvent) error {
	if len(events) == 0 {
		return nil
	}

	messages := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		msg, err := p.buildMessage(e)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}

	if err := p.producer.SendMessages(messages); err != nil {
		return fmt.Errorf("failed to send booking events to Kafka: %w", err)
	}

	p.logger.Debug("booking events published", "topic", p.topic, "count", len(messages))
	return nil
}

func (p *EventProducer) buildMessage(e audit.TimelineEvent) (*sarama.ProducerMessage, error) {
	envelope := NewBookingEventMessage(e, p.now())
	body, err := envelope.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal booking event %d: %w", e.ID, err)
	}

	return &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(envelope.PartitionKey()),
		Value:     sarama.ByteEncoder(body),
		Headers:   p.createHeaders(e),
		Timestamp: e.OccurredAt,
	}, nil
}

// createHeaders lets consumers route without decoding the body
func (p *EventProducer) createHeaders(e audit.TimelineEvent) []sarama.RecordHeader {
	headers := []sarama.RecordHeader{
		{Key: []byte("event_id"), Value: []byte(strconv.FormatInt(e.ID, 10))},
		{Key: []byte("booking_id"), Value: []byte(e.BookingID.String())},
		{Key: []byte("category"), Value: []byte(e.Category)},
		{Key: []byte("action"), Value: []byte(e.Action)},
		{Key: []byte("version"), Value: []byte(envelopeVersion)},
		{Key: []byte("producer"), Value: []byte(producerName)},
	}
	if e.ToStatus != "" {
		headers = append(headers, sarama.RecordHeader{Key: []byte("to_status"), Value: []byte(e.ToStatus)})
	}
	return headers
}

// Close closes the Kafka producer
func (p *EventProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.logger.Info("kafka event producer closed")
	return nil
}

// HealthCheck validates the producer is usable
func (p *EventProducer) HealthCheck(ctx context.Context) error {
	if p.producer == nil {
		return fmt.Errorf("health check failed - producer is nil")
	}
	if p.topic == "" {
		return fmt.Errorf("health check failed - topic not configured")
	}
	return nil
}
