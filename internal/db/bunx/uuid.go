package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for database primary keys.
//
// UUIDv7 keeps inserts roughly append-only in the index and works identically
// on PostgreSQL and SQLite (no gen_random_uuid() dependency).
//
// Panics only on catastrophic entropy failure, in which case no ID generation
// would succeed anyway.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
