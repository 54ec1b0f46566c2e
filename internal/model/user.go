package model

import "time"

// User is the account that owns the inbox. Single-tenant in practice,
// but the schema does not assume it.
type User struct {
	ID           int
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
