package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the top-level ledger entry. Amounts are in the asset's smallest unit.
type Transaction struct {
	ID                string              `db:"id"`
	UserID            string              `db:"user_id"`
	Reference         string              `db:"reference"`
	ExternalReference sql.NullString      `db:"external_reference"`
	Asset             string              `db:"asset"`
	Amount            int64               `db:"amount"`
	BalanceBefore     int64               `db:"balance_before"`
	BalanceAfter      int64               `db:"balance_after"`
	Type              string              `db:"transaction_type"`
	Category          string              `db:"category"`
	Scope             string              `db:"scope"`
	Status            string              `db:"status"`
	Metadata          TransactionMetadata `db:"metadata"`
	Description       sql.NullString      `db:"description"`
	FailureReason     sql.NullString      `db:"failure_reason"`
	ProcessedAt       sql.NullTime        `db:"processed_at"`
	CreatedAt         time.Time           `db:"created_at"`
	UpdatedAt         sql.NullTime        `db:"updated_at"`
}

const (
	TransactionTypeDeposit    = "deposit"
	TransactionTypeWithdrawal = "withdrawal"
	TransactionTypeTransfer   = "transfer"
	TransactionTypeFee        = "fee"
	TransactionTypeRefund     = "refund"
	TransactionTypeSwap       = "swap"
	TransactionTypeReversal   = "reversal"
)

const (
	TransactionCategoryFiat       = "fiat"
	TransactionCategoryBlockchain = "blockchain"

	TransactionScopeInternal = "internal"
	TransactionScopeExternal = "external"
)

// Quote is a time-bounded price commitment from the quote provider.
type Quote struct {
	QuoteRef       string          `json:"quote_ref"`
	SourceCurrency string          `json:"source_currency"`
	TargetCurrency string          `json:"target_currency"`
	Operation      string          `json:"operation"`
	Amount         decimal.Decimal `json:"amount"`
	Rate           decimal.Decimal `json:"rate"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

func (q Quote) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && !now.Before(q.ExpiresAt)
}

const (
	QuoteOperationBuy  = "buy"
	QuoteOperationSell = "sell"
)

// RiskEvaluation is the risk-signal verdict for a deposit.
type RiskEvaluation struct {
	Result     string             `json:"result"`
	RulesetKey string             `json:"ruleset_key"`
	RequestRef string             `json:"request_ref"`
	Scores     map[string]float64 `json:"scores,omitempty"`
}

const (
	RiskResultAccept  = "ACCEPT"
	RiskResultReview  = "REVIEW"
	RiskResultReroute = "REROUTE"
)

// TransferParams holds what is needed to rebuild a quote request after a webhook re-entry.
type TransferParams struct {
	Provider          string          `json:"provider"`
	ParticipantRef    string          `json:"participant_ref"`
	ExternalAccountID string          `json:"external_account_id"`
	SourceCurrency    string          `json:"source_currency"`
	TargetCurrency    string          `json:"target_currency"`
	Operation         string          `json:"operation"`
	Amount            decimal.Decimal `json:"amount"`
}

type TransactionMetadata struct {
	Quote      *Quote          `json:"quote,omitempty"`
	RiskSignal *RiskEvaluation `json:"risk_signal,omitempty"`
	Transfer   *TransferParams `json:"transfer,omitempty"`
}

func (m TransactionMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *TransactionMetadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = TransactionMetadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported metadata type")
	}

	if len(raw) == 0 {
		*m = TransactionMetadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}
