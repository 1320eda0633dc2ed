package notifications

import (
	"context"
	"fmt"
	"sync"

	"adspace/internal/audit"
	"adspace/internal/shared/config"
	"adspace/pkg/logger"
)

// Service owns the Kafka side of the booking event stream: the producer the
// outbox dispatcher writes to and the consumer that feeds the local hub.
type Service struct {
	producer *EventProducer
	consumer *EventConsumer
	logger   *logger.Logger

	mu        sync.Mutex
	isRunning bool
}

func NewService(cfg config.KafkaConfig, publisher Publisher, log *logger.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("kafka is disabled")
	}

	producerConfig := DefaultProducerConfig()
	producerConfig.Brokers = cfg.Brokers
	producerConfig.Topic = cfg.EventsTopic
	producerConfig.ClientID = cfg.ClientID

	producer, err := NewEventProducer(producerConfig, log)
	if err != nil {
		return nil, err
	}

	consumerConfig := DefaultConsumerConfig()
	consumerConfig.Brokers = cfg.Brokers
	consumerConfig.Topics = []string{cfg.EventsTopic}
	consumerConfig.GroupID = cfg.ConsumerGroup
	consumerConfig.ClientID = cfg.ClientID

	consumer, err := NewEventConsumer(consumerConfig, publisher, log)
	if err != nil {
		producer.Close()
		return nil, err
	}

	return &Service{producer: producer, consumer: consumer, logger: log}, nil
}

// Sink is what the outbox dispatcher publishes through.
func (s *Service) Sink() audit.Sink {
	return s.producer
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("event stream is already running")
	}
	s.consumer.Start(ctx)
	s.isRunning = true
	return nil
}

func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return s.producer.Close()
	}
	s.isRunning = false

	var firstErr error
	if err := s.consumer.Stop(); err != nil {
		firstErr = err
	}
	if err := s.producer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Service) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()

	if !running {
		return fmt.Errorf("event stream is not running")
	}
	return s.producer.HealthCheck(ctx)
}
