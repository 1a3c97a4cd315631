package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/fundsrail/internal/queue"
	"github.com/cradoe/fundsrail/internal/stream"
)

// FundingWorker consumes funding jobs until ctx is cancelled.
func (wk *Worker) FundingWorker(ctx context.Context) error {
	consumer, err := wk.stream.CreateConsumer(&stream.StreamConsumer{
		GroupId: stream.FundingGroupID,
		Topic:   stream.FundingJobsTopic,
	})
	if err != nil {
		return fmt.Errorf("create funding consumer: %w", err)
	}

	return wk.consume(ctx, consumer)
}

func (wk *Worker) consume(ctx context.Context, consumer Consumer) error {
	defer func() {
		if err := consumer.Close(); err != nil {
			wk.logger.Error("failed to close funding consumer", slog.Any("error", err))
		}
	}()

	wk.logger.Info("funding worker started", slog.String("topic", stream.FundingJobsTopic))

	for {
		select {
		case <-ctx.Done():
			wk.logger.Info("funding worker stopped")
			return nil
		default:
		}

		event := consumer.Poll(100)
		switch e := event.(type) {
		case *kafka.Message:
			wk.handleMessage(ctx, consumer, e)
		case kafka.Error:
			wk.logger.Error("funding consumer error", slog.Any("error", e), slog.Bool("fatal", e.IsFatal()))
			if e.IsFatal() {
				return e
			}
		}
	}
}

func (wk *Worker) handleMessage(ctx context.Context, consumer Consumer, msg *kafka.Message) {
	var job queue.FundingJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		// a payload that cannot be decoded never will be
		wk.logger.Error("dropping malformed funding job", slog.String("partition", msg.TopicPartition.String()), slog.Any("error", err))
		wk.commit(consumer, msg)
		return
	}

	outcome, err := wk.executor.Execute(ctx, job)
	if err != nil {
		wk.logger.Error("funding job failed, will retry",
			slog.String("job_id", job.JobID),
			slog.String("wallet_transaction_id", job.WalletTransactionID),
			slog.Any("error", err))

		// rewind so the same message is polled again
		if err := consumer.Seek(msg.TopicPartition, 0); err != nil {
			wk.logger.Error("failed to rewind funding consumer", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
		case <-time.After(wk.RetryDelay):
		}
		return
	}

	wk.logger.Info("funding job handled", slog.String("job_id", job.JobID), slog.String("outcome", outcome))
	wk.commit(consumer, msg)
}

func (wk *Worker) commit(consumer Consumer, msg *kafka.Message) {
	if _, err := consumer.CommitMessage(msg); err != nil {
		wk.logger.Error("failed to commit funding job offset", slog.Any("error", err))
	}
}
