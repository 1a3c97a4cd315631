package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/fundsrail/internal/queue"
	"github.com/cradoe/fundsrail/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeConsumer replays events and cancels the loop once they run out.
type fakeConsumer struct {
	mu        sync.Mutex
	events    []kafka.Event
	cancel    context.CancelFunc
	committed []kafka.Offset
	seeks     []kafka.Offset
	closed    bool
}

func (c *fakeConsumer) Poll(int) kafka.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.events) == 0 {
		c.cancel()
		return nil
	}
	e := c.events[0]
	c.events = c.events[1:]
	return e
}

func (c *fakeConsumer) CommitMessage(msg *kafka.Message) ([]kafka.TopicPartition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, msg.TopicPartition.Offset)
	return []kafka.TopicPartition{msg.TopicPartition}, nil
}

func (c *fakeConsumer) Seek(partition kafka.TopicPartition, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeks = append(c.seeks, partition.Offset)
	return nil
}

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

type mockExecutor struct{ mock.Mock }

func (m *mockExecutor) Execute(ctx context.Context, job queue.FundingJob) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}

type mockReconciler struct{ mock.Mock }

func (m *mockReconciler) ReconcileUnlinked(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func message(t *testing.T, offset int64, value []byte) *kafka.Message {
	t.Helper()
	topic := stream.FundingJobsTopic
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: kafka.Offset(offset)},
		Value:          value,
	}
}

func encode(t *testing.T, job queue.FundingJob) []byte {
	t.Helper()
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	return raw
}

func sameJob(want queue.FundingJob) func(queue.FundingJob) bool {
	return func(got queue.FundingJob) bool {
		return got.JobID == want.JobID && got.WalletTransactionID == want.WalletTransactionID && got.QuoteRef == want.QuoteRef
	}
}

func newWorker(executor JobExecutor, reconciler Reconciler) *Worker {
	wk := New(nil, executor, reconciler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	wk.RetryDelay = time.Millisecond
	return wk
}

func TestConsumeCommitsHandledJobs(t *testing.T) {
	job := queue.FundingJob{JobID: "funding-wtx-1-q-1", WalletTransactionID: "wtx-1", QuoteRef: "q-1"}

	executor := new(mockExecutor)
	executor.On("Execute", mock.Anything, mock.MatchedBy(sameJob(job))).Return("completed", nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	consumer := &fakeConsumer{cancel: cancel, events: []kafka.Event{
		message(t, 7, encode(t, job)),
		kafka.NewError(kafka.ErrTransport, "broker down", false),
	}}

	err := newWorker(executor, nil).consume(ctx, consumer)
	require.NoError(t, err)

	assert.Equal(t, []kafka.Offset{7}, consumer.committed)
	assert.Empty(t, consumer.seeks)
	assert.True(t, consumer.closed)
	executor.AssertExpectations(t)
}

func TestConsumeRewindsFailedJobs(t *testing.T) {
	job := queue.FundingJob{JobID: "j", WalletTransactionID: "wtx-1"}

	executor := new(mockExecutor)
	executor.On("Execute", mock.Anything, mock.MatchedBy(sameJob(job))).Return("", errors.New("db down")).Once()
	executor.On("Execute", mock.Anything, mock.MatchedBy(sameJob(job))).Return("completed", nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	consumer := &fakeConsumer{cancel: cancel, events: []kafka.Event{
		message(t, 3, encode(t, job)),
		message(t, 3, encode(t, job)),
	}}

	require.NoError(t, newWorker(executor, nil).consume(ctx, consumer))

	assert.Equal(t, []kafka.Offset{3}, consumer.seeks)
	assert.Equal(t, []kafka.Offset{3}, consumer.committed)
}

func TestConsumeDropsMalformedPayload(t *testing.T) {
	executor := new(mockExecutor)

	ctx, cancel := context.WithCancel(context.Background())
	consumer := &fakeConsumer{cancel: cancel, events: []kafka.Event{message(t, 1, []byte("{not json"))}}

	require.NoError(t, newWorker(executor, nil).consume(ctx, consumer))

	assert.Equal(t, []kafka.Offset{1}, consumer.committed)
	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestConsumeStopsOnFatalError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer := &fakeConsumer{cancel: cancel, events: []kafka.Event{
		kafka.NewError(kafka.ErrFatal, "fenced", true),
	}}

	err := newWorker(new(mockExecutor), nil).consume(ctx, consumer)
	assert.Error(t, err)
	assert.True(t, consumer.closed)
}

func TestReconcileUsesBatchSize(t *testing.T) {
	reconciler := new(mockReconciler)
	reconciler.On("ReconcileUnlinked", mock.Anything, 100).Return(2, nil).Once()

	newWorker(nil, reconciler).reconcile(context.Background())
	reconciler.AssertExpectations(t)
}

func TestReconcileSkippedAfterShutdown(t *testing.T) {
	reconciler := new(mockReconciler)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newWorker(nil, reconciler).reconcile(ctx)
	reconciler.AssertNotCalled(t, "ReconcileUnlinked", mock.Anything, mock.Anything)
}

func TestStartReconcilerRejectsBadSchedule(t *testing.T) {
	_, err := newWorker(nil, new(mockReconciler)).StartReconciler(context.Background(), "every now and then")
	assert.Error(t, err)
}

func TestStartReconcilerRuns(t *testing.T) {
	reconciler := new(mockReconciler)
	ran := make(chan struct{}, 1)
	reconciler.On("ReconcileUnlinked", mock.Anything, 100).Return(0, nil).Run(func(mock.Arguments) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})

	c, err := newWorker(nil, reconciler).StartReconciler(context.Background(), "@every 1s")
	require.NoError(t, err)
	defer c.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("reconciler did not run")
	}
}
