package notify

import (
	"context"
	"errors"
	"time"
)

// Event types published on transfer and settlement outcomes.
const (
	EventTransferProcessing = "transfer.processing"
	EventTransferReview     = "transfer.review"
	EventTransferFailed     = "transfer.failed"
	EventTransferCompleted  = "transfer.completed"
	EventSettlementComplete = "settlement.completed"
)

type Event struct {
	Type          string    `json:"type"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id"`
	Reference     string    `json:"reference"`
	TransferType  string    `json:"transfer_type"`
	Amount        string    `json:"amount"`
	Asset         string    `json:"asset"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Sink delivers an event. Callers treat failures as best effort.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
