package models

// KYCLevel is a tier with its transfer limits, expressed in minor units of the tier currency.
type KYCLevel struct {
	ID                  string `db:"id"`
	LevelName           string `db:"level_name"`
	Currency            string `db:"currency"`
	DailyTransferLimit  int64  `db:"daily_transfer_limit"`
	SingleTransferLimit int64  `db:"single_transfer_limit"`
	DailyDepositLimit   int64  `db:"daily_deposit_limit"`
}
