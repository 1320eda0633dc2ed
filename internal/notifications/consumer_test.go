package notifications

import (
	"testing"
	"time"

	"adspace/internal/audit"
	"adspace/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []audit.TimelineEvent
}

func (p *recordingPublisher) Publish(e audit.TimelineEvent) {
	p.events = append(p.events, e)
}

func TestConsumerHandlerPublishesDecodedEvent(t *testing.T) {
	pub := &recordingPublisher{}
	handler := NewConsumerGroupHandler(pub, logger.NewDiscard())

	event := sampleEvent(7, uuid.New())
	body, err := NewBookingEventMessage(event, time.Now()).ToJSON()
	require.NoError(t, err)

	require.NoError(t, handler.Process(&sarama.ConsumerMessage{Topic: "booking-events", Value: body}))
	require.Len(t, pub.events, 1)
	assert.Equal(t, event.ID, pub.events[0].ID)
	assert.Equal(t, event.BookingID, pub.events[0].BookingID)
	assert.Equal(t, "CONFIRMED", pub.events[0].ToStatus)
}

func TestConsumerHandlerRejectsMalformedMessages(t *testing.T) {
	pub := &recordingPublisher{}
	handler := NewConsumerGroupHandler(pub, logger.NewDiscard())

	assert.Error(t, handler.Process(&sarama.ConsumerMessage{Value: []byte("not json")}))
	assert.Error(t, handler.Process(&sarama.ConsumerMessage{Value: []byte(`{"version":"1.0","event":{"id":1}}`)}))
	assert.Empty(t, pub.events)
}
