package provider

import (
	"context"
	"time"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/shopspring/decimal"
)

type RiskRequest struct {
	AccessToken string
	AccountRef  string
	Amount      decimal.Decimal
	Currency    string
	CountryCode string
}

type RiskSignalProvider interface {
	Evaluate(ctx context.Context, req RiskRequest) (*models.RiskEvaluation, error)
}

type QuoteRequest struct {
	ParticipantRef string
	SourceCurrency string
	TargetCurrency string
	Operation      string
	Amount         decimal.Decimal
	Expiry         time.Duration
}

type QuoteProvider interface {
	RequestQuote(ctx context.Context, req QuoteRequest) (*models.Quote, error)
}

// Monitoring review answers.
const (
	ReviewAnswerGreen = "GREEN"
	ReviewAnswerRed   = "RED"

	ReviewStatusCompleted = "completed"
	ReviewStatusOnHold    = "onHold"
	ReviewStatusPending   = "pending"
)

type MonitoringResult struct {
	ReviewStatus  string `json:"review_status"`
	ReviewAnswer  string `json:"review_answer"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func (r MonitoringResult) OnHold() bool {
	return r.ReviewStatus == ReviewStatusOnHold
}

func (r MonitoringResult) Accepted() bool {
	return r.ReviewStatus == ReviewStatusCompleted && r.ReviewAnswer == ReviewAnswerGreen
}

type MonitoringService interface {
	MonitorDeposit(ctx context.Context, walletTransactionID string) (*MonitoringResult, error)
}

type Execution struct {
	ExternalRef string `json:"external_ref"`
	Status      string `json:"status"`
}

// Execution statuses reported by the funding provider. Anything else is still in flight.
const (
	ExecutionSettled  = "settled"
	ExecutionRejected = "rejected"
)

// FundingProvider executes quotes. GetExecution reports whether a quote was already
// executed; found is false when the provider has no execution for it.
type FundingProvider interface {
	ExecuteQuote(ctx context.Context, participantRef, quoteRef string) (*Execution, error)
	GetExecution(ctx context.Context, participantRef, quoteRef string) (execution *Execution, found bool, err error)
}
