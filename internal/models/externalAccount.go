package models

import (
	"database/sql"
	"time"
)

// ExternalAccount is a bank account linked through the bank-link provider.
type ExternalAccount struct {
	ID                string         `db:"id"`
	UserID            string         `db:"user_id"`
	Provider          string         `db:"provider"`
	ParticipantCode   sql.NullString `db:"participant_code"`
	Status            string         `db:"status"`
	ProviderKycStatus string         `db:"provider_kyc_status"`
	AccessToken       sql.NullString `db:"access_token"`
	AccountRef        sql.NullString `db:"account_ref"`
	Currency          string         `db:"currency"`
	CreatedAt         time.Time      `db:"created_at"`
}

const (
	ExternalAccountApproved          = "approved"
	ExternalAccountPendingDisconnect = "pending_disconnect"
	ExternalAccountDisconnected      = "disconnected"
)

// ProviderKyc is the user's identity record at the bank-link provider.
type ProviderKyc struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Provider    string    `db:"provider"`
	ProviderRef string    `db:"provider_ref"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}
