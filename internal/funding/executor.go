// Package funding executes queued funding jobs against the funding provider and
// finalises the ledger once the provider answers.
package funding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cradoe/fundsrail/internal/lock"
	"github.com/cradoe/fundsrail/internal/metrics"
	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/notify"
	"github.com/cradoe/fundsrail/internal/provider"
	"github.com/cradoe/fundsrail/internal/queue"
	"github.com/cradoe/fundsrail/internal/repository"
	"github.com/cradoe/fundsrail/internal/transfer"
)

// Outcomes reported for a job.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// ErrExecutionPending is returned while the provider reports the quote as neither settled nor rejected.
var ErrExecutionPending = errors.New("funding execution still pending")

type Ledger interface {
	GetWalletTransaction(ctx context.Context, id string) (*models.WalletTransaction, bool, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, bool, error)
	Transition(ctx context.Context, walletTxID string, from []string, to string, reason sql.NullString) (bool, error)
	RecordExecution(ctx context.Context, walletTxID, externalRef string) (bool, error)
	CompleteFunding(ctx context.Context, walletTxID, externalRef string) (*repository.FundingOutcome, error)
}

type BackgroundRunner interface {
	BackgroundTask(name string, fn func() error)
}

type Config struct {
	Lock lock.Options
	// Attempts bounds the calls to the provider when it cannot be reached
	Attempts   int
	RetryDelay time.Duration
}

type Executor struct {
	cfg        Config
	ledger     Ledger
	provider   provider.FundingProvider
	locker     lock.Locker
	notifier   notify.Sink
	background BackgroundRunner
	logger     *slog.Logger
	now        func() time.Time
}

func NewExecutor(cfg Config, ledger Ledger, funding provider.FundingProvider, locker lock.Locker, notifier notify.Sink, background BackgroundRunner, logger *slog.Logger) *Executor {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		cfg:        cfg,
		ledger:     ledger,
		provider:   funding,
		locker:     locker,
		notifier:   notifier,
		background: background,
		logger:     logger,
		now:        time.Now,
	}
}

// Execute runs one job to a terminal state. A returned error means the job was not
// finalised and should be redelivered; everything else is recorded on the rows.
func (e *Executor) Execute(ctx context.Context, job queue.FundingJob) (string, error) {
	outcome, err := lock.WithLock(ctx, e.locker, e.logger, lock.FundingKey(job.WalletTransactionID), e.cfg.Lock, func(ctx context.Context) (string, error) {
		return e.execute(ctx, job)
	})
	if errors.Is(err, lock.ErrLockAcquisition) {
		metrics.RecordLockFailure("funding")
	}
	if err != nil {
		metrics.RecordFundingJob("error")
		return "", err
	}

	metrics.RecordFundingJob(outcome)
	return outcome, nil
}

func (e *Executor) execute(ctx context.Context, job queue.FundingJob) (string, error) {
	logger := e.logger.With(slog.String("job_id", job.JobID), slog.String("wallet_transaction_id", job.WalletTransactionID))

	walletTx, found, err := e.ledger.GetWalletTransaction(ctx, job.WalletTransactionID)
	if err != nil {
		return "", fmt.Errorf("load wallet transaction: %w", err)
	}
	if !found {
		logger.Warn("funding job for unknown transaction dropped")
		return OutcomeSkipped, nil
	}

	// rows moved to review by a webhook, or already finalised, are left alone
	if !transfer.Decide(walletTx.Status, transfer.EventFundingSettle).Allowed {
		logger.Info("funding job skipped", slog.String("status", walletTx.Status))
		return OutcomeSkipped, nil
	}
	if walletTx.ProviderQuoteRef.String != job.QuoteRef {
		logger.Info("funding job carries a superseded quote", slog.String("quote_ref", job.QuoteRef))
		return OutcomeSkipped, nil
	}

	txn, found, err := e.ledger.GetTransaction(ctx, walletTx.TransactionID.String)
	if err != nil {
		return "", fmt.Errorf("load transaction: %w", err)
	}
	if !found || txn.Metadata.Transfer == nil {
		return e.fail(ctx, walletTx, nil, "Transfer parameters are missing")
	}

	externalRef, rejection, err := e.resolveExecution(ctx, logger, walletTx, txn, job.QuoteRef)
	if err != nil {
		return "", err
	}
	if rejection != "" {
		return e.fail(ctx, walletTx, txn, rejection)
	}

	result, err := e.ledger.CompleteFunding(ctx, walletTx.ID, externalRef)
	if errors.Is(err, repository.ErrInsufficientBalance) {
		return e.fail(ctx, walletTx, txn, "Insufficient balance for withdrawal")
	}
	if err != nil {
		return "", fmt.Errorf("complete funding: %w", err)
	}
	if !result.Applied {
		logger.Info("funding finalisation skipped", slog.String("status", result.Status))
		return OutcomeSkipped, nil
	}

	logger.Info("funding completed",
		slog.Int64("balance_before", result.BalanceBefore),
		slog.Int64("balance_after", result.BalanceAfter))
	e.publish(notify.EventTransferCompleted, txn, models.StatusCompleted, "")

	return OutcomeCompleted, nil
}

// resolveExecution returns the provider's ref for a settled execution, or a rejection reason
// when the provider definitely refused the quote. An error means the outcome is unknown and
// the job has to be redelivered; the rows stay processing.
func (e *Executor) resolveExecution(ctx context.Context, logger *slog.Logger, walletTx *models.WalletTransaction, txn *models.Transaction, quoteRef string) (string, string, error) {
	if txn.ExternalReference.Valid && txn.ExternalReference.String != "" {
		logger.Info("provider execution already recorded", slog.String("external_ref", txn.ExternalReference.String))
		return txn.ExternalReference.String, "", nil
	}

	participantRef := txn.Metadata.Transfer.ParticipantRef

	execution, err := e.executeQuote(ctx, participantRef, quoteRef)
	if err != nil {
		// the quote may have executed even though the call failed
		existing, found, lookupErr := e.provider.GetExecution(ctx, participantRef, quoteRef)
		switch {
		case lookupErr != nil:
			return "", "", fmt.Errorf("funding outcome unknown: %w", errors.Join(err, lookupErr))
		case found:
			logger.Warn("funding execution recovered by lookup", slog.Any("error", err))
			execution = existing
		case isClientError(err):
			return "", "Funding rejected by provider", nil
		default:
			return "", "", fmt.Errorf("funding provider unavailable: %w", err)
		}
	}

	switch execution.Status {
	case provider.ExecutionSettled:
	case provider.ExecutionRejected:
		return "", "Funding rejected by provider", nil
	default:
		return "", "", fmt.Errorf("%w: quote %s is %q", ErrExecutionPending, quoteRef, execution.Status)
	}

	recorded, err := e.ledger.RecordExecution(ctx, walletTx.ID, execution.ExternalRef)
	if err != nil {
		return "", "", fmt.Errorf("record execution: %w", err)
	}
	if !recorded {
		logger.Warn("provider execution not recorded", slog.String("external_ref", execution.ExternalRef))
	}

	return execution.ExternalRef, "", nil
}

func (e *Executor) executeQuote(ctx context.Context, participantRef, quoteRef string) (*provider.Execution, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.RetryDelay

	return backoff.Retry(ctx, func() (*provider.Execution, error) {
		execution, err := e.provider.ExecuteQuote(ctx, participantRef, quoteRef)
		if isClientError(err) {
			return nil, backoff.Permanent(err)
		}
		return execution, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(e.cfg.Attempts)))
}

func isClientError(err error) bool {
	var status *provider.StatusError
	return errors.As(err, &status) && status.StatusCode < 500
}

func (e *Executor) fail(ctx context.Context, walletTx *models.WalletTransaction, txn *models.Transaction, reason string) (string, error) {
	reject := transfer.Decide(walletTx.Status, transfer.EventFundingReject)

	applied, err := e.ledger.Transition(ctx, walletTx.ID, reject.From, reject.To, sql.NullString{String: reason, Valid: true})
	if err != nil {
		return "", fmt.Errorf("fail funding: %w", err)
	}
	if !applied {
		return OutcomeSkipped, nil
	}

	e.logger.Warn("funding failed", slog.String("wallet_transaction_id", walletTx.ID), slog.String("reason", reason))
	if txn != nil {
		e.publish(notify.EventTransferFailed, txn, models.StatusFailed, reason)
	}

	return OutcomeFailed, nil
}

func (e *Executor) publish(eventType string, txn *models.Transaction, status, reason string) {
	if e.background == nil {
		return
	}

	amount := txn.Amount
	if amount < 0 {
		amount = -amount
	}

	event := notify.Event{
		Type:          eventType,
		UserID:        txn.UserID,
		TransactionID: txn.ID,
		Reference:     txn.Reference,
		TransferType:  txn.Type,
		Amount:        models.FromMinorUnits(amount, txn.Asset).StringFixed(models.AssetDecimals(txn.Asset)),
		Asset:         txn.Asset,
		Status:        status,
		Reason:        reason,
		OccurredAt:    e.now().UTC(),
	}

	e.background.BackgroundTask("notify:"+eventType, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return e.notifier.Notify(ctx, event)
	})
}
