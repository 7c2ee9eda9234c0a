package domain

import "errors"

var (
	// ErrItemNotFound is returned when a queue item cannot be found in the database
	ErrItemNotFound = errors.New("queue item not found")
)
