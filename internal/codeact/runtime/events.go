package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// uiEventEnvelope is the wire shape published for every "running"/"final"
// placeholder the dispatcher emits.
type uiEventEnvelope struct {
	ConversationID string    `json:"conversation_id"`
	Event          string    `json:"event"` // "running" | "final"
	Payload        any       `json:"payload"`
	Timestamp      time.Time `json:"timestamp"`
}

// KafkaUIEvents publishes the dispatcher's per-action UI placeholders to a
// Kafka topic for async consumers (e.g. a websocket fan-out service). Only
// the producer side is wired; nothing in this module consumes the topic.
type KafkaUIEvents struct {
	writer *kafka.Writer
}

func NewKafkaUIEvents(brokers, topic string) *KafkaUIEvents {
	return &KafkaUIEvents{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

func (e *KafkaUIEvents) Publish(ctx context.Context, convID string, event string, payload any) {
	if e == nil || e.writer == nil {
		return
	}
	body, err := json.Marshal(uiEventEnvelope{ConversationID: convID, Event: event, Payload: payload, Timestamp: time.Now()})
	if err != nil {
		log.Warn().Err(err).Msg("ui_event_marshal_failed")
		return
	}
	if err := e.writer.WriteMessages(ctx, kafka.Message{Key: []byte(convID), Value: body, Time: time.Now()}); err != nil {
		log.Warn().Err(err).Msg("ui_event_publish_failed")
	}
}

func (e *KafkaUIEvents) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
