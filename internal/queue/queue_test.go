package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cradoe/fundsrail/internal/cache"
	"github.com/cradoe/fundsrail/internal/stream"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) ProduceMessage(ctx context.Context, topic, key string, value []byte) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func TestEnqueuePublishesOnce(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	producer := new(mockProducer)
	q := NewKafkaQueue(producer, cache.NewWithClient(client))

	job := FundingJob{WalletTransactionID: "wtx-1", TransactionID: "tx-1", QuoteRef: "q-1"}
	jobID := JobID("wtx-1", "q-1")

	redisMock.ExpectSetNX("job:"+jobID, "wtx-1", dedupeTTL).SetVal(true)
	redisMock.ExpectSetNX("job:"+jobID, "wtx-1", dedupeTTL).SetVal(false)

	producer.On("ProduceMessage", mock.Anything, stream.FundingJobsTopic, "wtx-1", mock.MatchedBy(func(b []byte) bool {
		var got FundingJob
		return json.Unmarshal(b, &got) == nil && got.JobID == jobID && got.TransactionID == "tx-1"
	})).Return(nil).Once()

	id, err := q.Enqueue(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, jobID, id)

	id, err = q.Enqueue(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, jobID, id)

	producer.AssertExpectations(t)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestEnqueueClearsDedupeKeyWhenPublishFails(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	producer := new(mockProducer)
	q := NewKafkaQueue(producer, cache.NewWithClient(client))

	jobID := JobID("wtx-1", "q-1")
	redisMock.ExpectSetNX("job:"+jobID, "wtx-1", dedupeTTL).SetVal(true)
	redisMock.ExpectDel("job:" + jobID).SetVal(1)

	producer.On("ProduceMessage", mock.Anything, stream.FundingJobsTopic, "wtx-1", mock.Anything).
		Return(errors.New("broker down"))

	_, err := q.Enqueue(context.Background(), FundingJob{WalletTransactionID: "wtx-1", QuoteRef: "q-1", EnqueuedAt: time.Now()})
	assert.Error(t, err)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestEnqueueRequiresWalletTransaction(t *testing.T) {
	q := NewKafkaQueue(new(mockProducer), nil)
	_, err := q.Enqueue(context.Background(), FundingJob{})
	assert.Error(t, err)
}
