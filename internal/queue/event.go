// Package queue defines message payloads exchanged over the message broker.
package queue

// LoginQueueName is the durable queue login events are published to.
const LoginQueueName = "auth.login"

// LoginEvent is published after a successful login.  It carries what an
// audit consumer needs without querying the primary database.
type LoginEvent struct {
	UserID    uint64   `json:"user_id"`
	Login     string   `json:"login"`
	UserAgent string   `json:"user_agent"`
	Roles     []string `json:"roles"`
	TokenID   string   `json:"jti"`
	LoggedAt  string   `json:"logged_at"`
}
