package store

import "github.com/google/uuid"

// IDGenerator hands out run ids. Tests swap in a sequential one.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator is the default. v7 ids lead with a millisecond timestamp,
// so a sqlite3 shell lists runs roughly in creation order.
type UUIDv7Generator struct{}

// Generate panics only if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
