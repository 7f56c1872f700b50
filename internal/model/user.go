package model

import "time"

// User represents an account record as stored in the `users` table.  It is
// the Credential of the token engine: Login is unique and PasswordHash is
// only ever replaced, never read back as plaintext.
//
// Fields:
//
//	ID           – primary key identifier of the user (token subject).
//	Login        – unique login name.
//	Email        – optional contact address, empty when unset.
//	PasswordHash – PBKDF2 (or legacy bcrypt) hash.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Login        string    // users.login
	Email        string    // users.email (nullable)
	PasswordHash string    // users.password_hash
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Role represents a row in the `roles` table.  Users and roles are linked
// many-to-many through `roles_users`.
type Role struct {
	ID   uint64 `json:"id"`   // roles.id
	Name string `json:"name"` // roles.name (unique)
}

// LoginHistoryEntry is one append-only row of `login_history`, written once
// per successful login.
type LoginHistoryEntry struct {
	ID           string    `json:"id"` // login_history.id (uuid)
	UserID       uint64    `json:"user_id"`
	UserAgent    string    `json:"user_agent"`
	AuthDatetime time.Time `json:"auth_datetime"`
}
