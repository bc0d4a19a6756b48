package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"whatsapp-relay/models"
)

// DefaultKafkaTopic receives a copy of every relayed event.
const DefaultKafkaTopic = "whatsapp-events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink appends events to a Kafka topic keyed by conversation, so
// downstream consumers see the events of one conversation in order.
type KafkaSink struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafkaSink creates an asynchronous writer. Delivery is attempted once.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  1,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Warn("kafka: delivery failed", "topic", topic, "count", len(messages), "error", err)
			}
		},
	}
	return newKafkaSink(w)
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{w: w, timeout: 2 * time.Second}
}

func (k *KafkaSink) Broadcast(evt models.Event) {
	data, err := json.Marshal(evt.Message)
	if err != nil {
		slog.Error("kafka: failed to encode event", "type", evt.Message.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	err = k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Conversation),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Message.Type)},
		},
	})
	if err != nil {
		slog.Warn("kafka: write failed", "conversation", evt.Conversation, "error", err)
	}
}

func (k *KafkaSink) Close() error {
	return k.w.Close()
}
