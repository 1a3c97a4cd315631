package models

import (
	"database/sql"
	"time"
)

type BlockchainWallet struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Asset     string    `db:"asset"`
	Address   string    `db:"address"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
}

type BlockchainWalletTransaction struct {
	ID                 string         `db:"id"`
	BlockchainWalletID string         `db:"blockchain_wallet_id"`
	Asset              string         `db:"asset"`
	Amount             int64          `db:"amount"`
	BalanceBefore      int64          `db:"balance_before"`
	BalanceAfter       int64          `db:"balance_after"`
	Type               string         `db:"transaction_type"`
	Status             string         `db:"status"`
	Direction          string         `db:"direction"`
	TxHash             sql.NullString `db:"tx_hash"`
	PeerWalletID       sql.NullString `db:"peer_wallet_id"`
	MainTransactionID  sql.NullString `db:"main_transaction_id"`
	IdempotencyKey     string         `db:"idempotency_key"`
	Description        sql.NullString `db:"description"`
	FailureReason      sql.NullString `db:"failure_reason"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          sql.NullTime   `db:"updated_at"`
}

const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)
