package models

import (
	"database/sql"
	"time"
)

type User struct {
	ID          string         `db:"id"`
	KYCLevelID  sql.NullString `db:"kyc_level_id"`
	FirstName   string         `db:"first_name"`
	LastName    string         `db:"last_name"`
	Email       string         `db:"email"`
	CountryCode string         `db:"country_code"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
	DeletedAt   sql.NullTime   `db:"deleted_at"`
}
