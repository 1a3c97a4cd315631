package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/fundsrail/internal/queue"
	"github.com/cradoe/fundsrail/internal/stream"
)

// Consumer is the part of *kafka.Consumer the workers use.
type Consumer interface {
	Poll(timeoutMs int) kafka.Event
	CommitMessage(msg *kafka.Message) ([]kafka.TopicPartition, error)
	Seek(partition kafka.TopicPartition, ignoredTimeoutMs int) error
	Close() error
}

type ConsumerFactory interface {
	CreateConsumer(consumer *stream.StreamConsumer) (*kafka.Consumer, error)
}

type JobExecutor interface {
	Execute(ctx context.Context, job queue.FundingJob) (string, error)
}

type Reconciler interface {
	ReconcileUnlinked(ctx context.Context, limit int) (int, error)
}

// Worker hosts the background loops: the funding job consumer and the settlement reconciler.
type Worker struct {
	stream     ConsumerFactory
	executor   JobExecutor
	reconciler Reconciler
	logger     *slog.Logger

	// RetryDelay is the pause before a failed job is read again
	RetryDelay time.Duration
	// ReconcileBatch bounds the rows linked per reconciler run
	ReconcileBatch int
}

func New(kafkaStream ConsumerFactory, executor JobExecutor, reconciler Reconciler, logger *slog.Logger) *Worker {
	return &Worker{
		stream:         kafkaStream,
		executor:       executor,
		reconciler:     reconciler,
		logger:         logger,
		RetryDelay:     2 * time.Second,
		ReconcileBatch: 100,
	}
}
