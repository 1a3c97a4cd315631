package notify

import (
	"context"
	"encoding/json"

	"github.com/cradoe/fundsrail/internal/stream"
)

type Producer interface {
	ProduceMessage(ctx context.Context, topic, key string, value []byte) error
}

// StreamSink publishes events to Kafka keyed by user so a user's events stay ordered.
type StreamSink struct {
	producer Producer
	topic    string
}

func NewStreamSink(producer Producer) *StreamSink {
	return &StreamSink{producer: producer, topic: stream.TransferEventsTopic}
}

func (s *StreamSink) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.producer.ProduceMessage(ctx, s.topic, event.UserID, payload)
}
