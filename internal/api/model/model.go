package model

import (
	"database/sql"
	"time"
)

// QueueItem mirrors a row of the queue_items table for read endpoints
type QueueItem struct {
	ID                 string         `db:"id"`
	URL                string         `db:"url"`
	Status             string         `db:"status"`
	Priority           string         `db:"priority"`
	PublishAttemptedAt sql.NullTime   `db:"publish_attempted_at"`
	NextRetryAt        sql.NullTime   `db:"next_retry_at"`
	LastError          sql.NullString `db:"last_error"`
	ResponseStatus     sql.NullInt32  `db:"response_status"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}
