package models

import "time"

// ActivityLog is an audit entry. Entity and EntityID point at the row that changed,
// Status is that row's status after the change.
type ActivityLog struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Entity      string    `db:"entity"`
	EntityID    string    `db:"entity_id"`
	Status      string    `db:"status"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}
