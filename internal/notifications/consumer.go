package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adspace/internal/audit"
	"adspace/pkg/logger"

	"github.com/IBM/sarama"
)

// Publisher receives decoded booking events. The websocket hub satisfies it.
type Publisher interface {
	Publish(e audit.TimelineEvent)
}

type ConsumerConfig struct {
	Brokers           []string
	GroupID           string
	Topics            []string
	ClientID          string
	SessionTimeoutMs  int
	HeartbeatMs       int
	RetryBackoffMs    int
	MaxProcessingTime time.Duration
	OffsetOldest      bool
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		GroupID:           "adspace-stream",
		Topics:            []string{"booking-events"},
		ClientID:          "adspace",
		SessionTimeoutMs:  30000,
		HeartbeatMs:       3000,
		RetryBackoffMs:    100,
		MaxProcessingTime: time.Minute,
		OffsetOldest:      false,
	}
}

// EventConsumer reads booking events from Kafka and hands them to the local
// hub, so every instance streams events committed by any instance.
type EventConsumer struct {
	consumerGroup sarama.ConsumerGroup
	topics        []string
	handler       *ConsumerGroupHandler
	logger        *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEventConsumer(config *ConsumerConfig, publisher Publisher, log *logger.Logger) (*EventConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = config.ClientID

	saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMs) * time.Millisecond
	saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatMs) * time.Millisecond
	saramaConfig.Consumer.Retry.Backoff = time.Duration(config.RetryBackoffMs) * time.Millisecond
	saramaConfig.Consumer.MaxProcessingTime = config.MaxProcessingTime
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second

	// Live streaming only needs what happens from now on
	if config.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &EventConsumer{
		consumerGroup: consumerGroup,
		topics:        config.Topics,
		handler:       NewConsumerGroupHandler(publisher, log),
		logger:        log,
	}, nil
}

// Start runs the consume loop until Stop or ctx cancellation.
func (c *EventConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for err := range c.consumerGroup.Errors() {
			c.logger.WithError(err).Warn("kafka consumer group error")
		}
	}()
	go func() {
		defer c.wg.Done()
		for {
			if err := c.consumerGroup.Consume(ctx, c.topics, c.handler); err != nil {
				c.logger.WithError(err).Warn("kafka consume failed")
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.logger.Info("kafka event consumer started", "topics", c.topics)
}

func (c *EventConsumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.consumerGroup.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	c.logger.Info("kafka event consumer stopped")
	return nil
}

// ConsumerGroupHandler implements sarama.ConsumerGroupHandler
type ConsumerGroupHandler struct {
	publisher Publisher
	logger    *logger.Logger
}

func NewConsumerGroupHandler(publisher Publisher, log *logger.Logger) *ConsumerGroupHandler {
	return &ConsumerGroupHandler{publisher: publisher, logger: log}
}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Debug("kafka consumer session started")
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Debug("kafka consumer session ended")
	return nil
}

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			// Undecodable messages are skipped rather than retried forever
			if err := h.Process(message); err != nil {
				h.logger.WithError(err).Warn("dropping booking event",
					"topic", message.Topic, "partition", message.Partition, "offset", message.Offset)
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Process decodes one message and publishes it.
func (h *ConsumerGroupHandler) Process(message *sarama.ConsumerMessage) error {
	envelope, err := FromJSON(message.Value)
	if err != nil {
		return err
	}
	h.publisher.Publish(envelope.Event)
	return nil
}
