package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	// FundingJobsTopic carries funding executions deferred by the transfer orchestrator
	FundingJobsTopic = "funding.execute"

	// TransferEventsTopic receives transfer and settlement outcomes for downstream consumers
	TransferEventsTopic = "transfer.events"

	// FundingGroupID is the consumer group of the funding executor
	FundingGroupID = "funding-executor-group"
)

var ErrClosed = errors.New("stream: producer closed")

type KafkaStream struct {
	kafkaServers string
	logger       *slog.Logger

	mu       sync.Mutex
	producer *kafka.Producer
	closed   bool
}

func New(kafkaServers string, logger *slog.Logger) *KafkaStream {
	return &KafkaStream{
		kafkaServers: kafkaServers,
		logger:       logger,
	}
}

func (st *KafkaStream) getProducer() (*kafka.Producer, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil, ErrClosed
	}
	if st.producer != nil {
		return st.producer, nil
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  st.kafkaServers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, err
	}

	st.producer = producer
	return producer, nil
}

// ProduceMessage publishes value under key and waits for the broker acknowledgement.
// Messages with the same key land on the same partition.
func (st *KafkaStream) ProduceMessage(ctx context.Context, topic, key string, value []byte) error {
	producer, err := st.getProducer()
	if err != nil {
		return err
	}

	deliveryChan := make(chan kafka.Event, 1)

	err = producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryChan:
		msg, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %v", e)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("deliver to %s: %w", topic, msg.TopicPartition.Error)
		}
	}

	st.logger.Debug("message sent", slog.String("topic", topic), slog.String("key", key))
	return nil
}

type StreamConsumer struct {
	GroupId string
	Topic   string
}

// CreateConsumer subscribes with manual offset commits so a message is only
// acknowledged after it has been handled.
func (st *KafkaStream) CreateConsumer(consumerStruct *StreamConsumer) (*kafka.Consumer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  st.kafkaServers,
		"group.id":           consumerStruct.GroupId,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(consumerStruct.Topic, nil); err != nil {
		consumer.Close()
		return nil, err
	}

	return consumer, nil
}

// Close flushes outstanding messages and shuts the producer down.
func (st *KafkaStream) Close() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.closed = true
	if st.producer == nil {
		return
	}

	if remaining := st.producer.Flush(5000); remaining > 0 {
		st.logger.Warn("kafka producer closed with undelivered messages", slog.Int("remaining", remaining))
	}
	st.producer.Close()
	st.producer = nil
}
