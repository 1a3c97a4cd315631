package models

import (
	"database/sql"
	"time"
)

// WalletTransaction is the per-wallet side of a Transaction.
type WalletTransaction struct {
	ID                string         `db:"id"`
	TransactionID     sql.NullString `db:"transaction_id"`
	WalletID          string         `db:"wallet_id"`
	UserID            string         `db:"user_id"`
	Type              string         `db:"transaction_type"`
	Amount            int64          `db:"amount"`
	BalanceBefore     int64          `db:"balance_before"`
	BalanceAfter      int64          `db:"balance_after"`
	Currency          string         `db:"currency"`
	Status            string         `db:"status"`
	Provider          string         `db:"provider"`
	ProviderQuoteRef  sql.NullString `db:"provider_quote_ref"`
	Source            string         `db:"source"`
	Destination       string         `db:"destination"`
	ExternalAccountID string         `db:"external_account_id"`
	FailureReason     sql.NullString `db:"failure_reason"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         sql.NullTime   `db:"updated_at"`
}

// Ledger statuses shared by Transaction and WalletTransaction
const (
	StatusInitiated  = "initiated"
	StatusRiskEval   = "risk_eval"
	StatusQuoted     = "quoted"
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusReview     = "review"
	StatusCancelled  = "cancelled"
)

// InFlightStatuses block a second transfer of the same type for the same user.
var InFlightStatuses = []string{StatusPending, StatusProcessing, StatusInitiated, StatusReview}
