package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/cradoe/fundsrail/internal/apperr"
	"github.com/cradoe/fundsrail/internal/lock"
	"github.com/cradoe/fundsrail/internal/metrics"
	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/notify"
	"github.com/cradoe/fundsrail/internal/provider"
	"github.com/cradoe/fundsrail/internal/repository"
)

const (
	reasonSeparator   = " | "
	msgResumeInFlight = "Another deposit is in progress for this user"
)

type ResumeResult struct {
	Applied       bool   `json:"applied"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	JobID         string `json:"job_id,omitempty"`
	Message       string `json:"message"`
}

// ContinueDeposit resumes a deposit held in review with a fresh quote.
func (o *Orchestrator) ContinueDeposit(ctx context.Context, walletTxID string) (*ResumeResult, error) {
	return o.resume(ctx, walletTxID, EventContinue, func(ctx context.Context, walletTx *models.WalletTransaction) (*ResumeResult, error) {
		if !walletTx.TransactionID.Valid {
			return nil, apperr.NotFound("Ledger entry for this transaction was not found")
		}

		txn, found, err := o.Ledger.GetTransaction(ctx, walletTx.TransactionID.String)
		if err != nil {
			return nil, fmt.Errorf("load transaction: %w", err)
		}
		if !found {
			return nil, apperr.NotFound("Ledger entry for this transaction was not found")
		}

		params := txn.Metadata.Transfer
		if params == nil {
			return nil, apperr.BadRequest("Transaction has no stored transfer parameters")
		}

		// the quote taken at creation has most likely expired while in review
		quote, err := o.Quotes.RequestQuote(ctx, provider.QuoteRequest{
			ParticipantRef: params.ParticipantRef,
			SourceCurrency: params.SourceCurrency,
			TargetCurrency: params.TargetCurrency,
			Operation:      params.Operation,
			Amount:         params.Amount,
			Expiry:         o.cfg.QuoteExpiry,
		})
		if err != nil {
			return nil, apperr.ServiceUnavailable(msgDepositUnavailable, err)
		}

		refreshed, err := o.Ledger.RefreshQuote(ctx, walletTx.ID, *quote, txn.Metadata)
		if err != nil {
			return nil, fmt.Errorf("refresh quote: %w", err)
		}
		if !refreshed {
			return noop(walletTx, "Transaction is no longer in review"), nil
		}

		res, err := o.startProcessing(ctx, txn, walletTx, quote.QuoteRef, EventContinue)
		if err != nil {
			return nil, err
		}

		return &ResumeResult{
			Applied:       true,
			Status:        res.Status,
			TransactionID: walletTx.ID,
			JobID:         res.JobID,
			Message:       "Deposit resumed",
		}, nil
	})
}

// FailDeposit fails a deposit in review, or adds a reason to one that already failed.
func (o *Orchestrator) FailDeposit(ctx context.Context, walletTxID, reason string) (*ResumeResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Rejected by provider"
	}

	return o.resume(ctx, walletTxID, EventFail, func(ctx context.Context, walletTx *models.WalletTransaction) (*ResumeResult, error) {
		return o.settleReason(ctx, walletTx, EventFail, reason, notify.EventTransferFailed)
	})
}

// HoldDeposit puts a deposit (back) into review.
func (o *Orchestrator) HoldDeposit(ctx context.Context, walletTxID, reason string) (*ResumeResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Held for manual review"
	}

	return o.resume(ctx, walletTxID, EventHold, func(ctx context.Context, walletTx *models.WalletTransaction) (*ResumeResult, error) {
		return o.settleReason(ctx, walletTx, EventHold, reason, notify.EventTransferReview)
	})
}

func (o *Orchestrator) settleReason(ctx context.Context, walletTx *models.WalletTransaction, event Event, reason, eventType string) (*ResumeResult, error) {
	composed := ComposeReason(walletTx.FailureReason, reason)

	// a failed deposit put back in review is in flight again
	reentering := slices.Contains(models.InFlightStatuses, rules[event].to) && !slices.Contains(models.InFlightStatuses, walletTx.Status)
	if reentering {
		inFlight, err := o.Ledger.HasInFlightTransfer(ctx, walletTx.UserID, walletTx.Type)
		if err != nil {
			return nil, fmt.Errorf("check in-flight transfers: %w", err)
		}
		if inFlight {
			return nil, apperr.Conflict(msgResumeInFlight)
		}
	}

	applied, err := o.apply(ctx, walletTx.ID, event, composed)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.Conflict(msgResumeInFlight)
	}
	if err != nil {
		return nil, fmt.Errorf("%s deposit: %w", event, err)
	}
	if !applied {
		return noop(walletTx, "Transaction status changed"), nil
	}

	to := rules[event].to
	if walletTx.TransactionID.Valid {
		txn, found, err := o.Ledger.GetTransaction(ctx, walletTx.TransactionID.String)
		if err == nil && found {
			o.recordActivity(txn.UserID, txn.ID, to, fmt.Sprintf("deposit %s: %s", txn.Reference, reason))
			o.publish(eventType, txn, to, composed)
		}
	}

	return &ResumeResult{
		Applied:       true,
		Status:        to,
		TransactionID: walletTx.ID,
		Message:       fmt.Sprintf("Deposit moved to %s", to),
	}, nil
}

func (o *Orchestrator) resume(ctx context.Context, walletTxID string, event Event, apply func(context.Context, *models.WalletTransaction) (*ResumeResult, error)) (*ResumeResult, error) {
	walletTx, err := o.loadDeposit(ctx, walletTxID)
	if err != nil {
		return nil, err
	}

	key := lock.DepositKey(walletTx.UserID, walletTx.ExternalAccountID)

	res, err := lock.WithLock(ctx, o.Locker, o.Logger, key, o.cfg.Lock, func(ctx context.Context) (*ResumeResult, error) {
		// re-read under the lock; the first read only picked the lock key
		current, err := o.loadDeposit(ctx, walletTxID)
		if err != nil {
			return nil, err
		}

		d := Decide(current.Status, event)
		if !d.Allowed {
			o.Logger.Info("resumption ignored",
				slog.String("event", string(event)),
				slog.String("wallet_transaction_id", current.ID),
				slog.String("status", current.Status),
				slog.Bool("immutable", d.Immutable))

			return noop(current, fmt.Sprintf("Transaction is %s, nothing to do", current.Status)), nil
		}

		return apply(ctx, current)
	})
	if errors.Is(err, lock.ErrLockAcquisition) {
		metrics.RecordLockFailure("resume")
		return nil, apperr.Wrap(apperr.KindLockAcquisition, msgLockBusy, err)
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordResumption(string(event), res.Applied)
	return res, nil
}

func (o *Orchestrator) loadDeposit(ctx context.Context, walletTxID string) (*models.WalletTransaction, error) {
	walletTx, found, err := o.Ledger.GetWalletTransaction(ctx, walletTxID)
	if err != nil {
		return nil, fmt.Errorf("load wallet transaction: %w", err)
	}
	if !found {
		return nil, apperr.NotFound("Transaction not found")
	}
	if walletTx.Type != models.TransactionTypeDeposit {
		return nil, apperr.BadRequest("Transaction is not a deposit")
	}

	return walletTx, nil
}

// ComposeReason appends reason to the prior one instead of replacing it.
func ComposeReason(prior sql.NullString, reason string) string {
	if !prior.Valid || strings.TrimSpace(prior.String) == "" {
		return reason
	}
	return prior.String + reasonSeparator + reason
}

func noop(walletTx *models.WalletTransaction, message string) *ResumeResult {
	return &ResumeResult{
		Applied:       false,
		Status:        walletTx.Status,
		TransactionID: walletTx.ID,
		Message:       message,
	}
}
