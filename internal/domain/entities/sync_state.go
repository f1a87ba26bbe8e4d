package entities

import (
	"time"
)

// SyncState tracks the deposit high-water-mark for a user.
// LastTimestamp only moves forward; a reset sets it back to nil.
type SyncState struct {
	UserID        int64     `db:"user_id"`
	LastTimestamp *string   `db:"last_timestamp"`
	UpdatedAt     time.Time `db:"updated_at"`
}
