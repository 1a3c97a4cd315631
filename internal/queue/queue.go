package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cradoe/fundsrail/internal/stream"
)

// FundingJob asks the funding executor to execute the quote of a processing transfer.
type FundingJob struct {
	JobID               string    `json:"job_id"`
	WalletTransactionID string    `json:"wallet_transaction_id"`
	TransactionID       string    `json:"transaction_id"`
	UserID              string    `json:"user_id"`
	ExternalAccountID   string    `json:"external_account_id"`
	TransferType        string    `json:"transfer_type"`
	QuoteRef            string    `json:"quote_ref"`
	EnqueuedAt          time.Time `json:"enqueued_at"`
}

// JobQueue hands work to the background consumer.
type JobQueue interface {
	Enqueue(ctx context.Context, job FundingJob) (string, error)
}

type Producer interface {
	ProduceMessage(ctx context.Context, topic, key string, value []byte) error
}

type Deduper interface {
	SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

const dedupeTTL = 24 * time.Hour

// JobID is stable per wallet transaction and quote, so re-enqueueing the same
// execution is a no-op while a refreshed quote after review gets a new job.
func JobID(walletTransactionID, quoteRef string) string {
	return "funding-" + walletTransactionID + "-" + quoteRef
}

// KafkaQueue publishes funding jobs keyed by wallet transaction id.
type KafkaQueue struct {
	producer Producer
	dedupe   Deduper
	topic    string
}

func NewKafkaQueue(producer Producer, dedupe Deduper) *KafkaQueue {
	return &KafkaQueue{
		producer: producer,
		dedupe:   dedupe,
		topic:    stream.FundingJobsTopic,
	}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, job FundingJob) (string, error) {
	if job.WalletTransactionID == "" {
		return "", errors.New("queue: funding job without wallet transaction id")
	}

	job.JobID = JobID(job.WalletTransactionID, job.QuoteRef)
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	dedupeKey := "job:" + job.JobID
	fresh, err := q.dedupe.SetNX(ctx, dedupeKey, job.WalletTransactionID, dedupeTTL)
	if err != nil {
		return "", fmt.Errorf("dedupe funding job: %w", err)
	}
	if !fresh {
		return job.JobID, nil
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	if err := q.producer.ProduceMessage(ctx, q.topic, job.WalletTransactionID, payload); err != nil {
		// let a retry publish again
		_ = q.dedupe.Delete(context.WithoutCancel(ctx), dedupeKey)
		return "", fmt.Errorf("publish funding job: %w", err)
	}

	return job.JobID, nil
}
