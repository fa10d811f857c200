// Package queue defines message payloads exchanged over the message
// broker. The auth service only publishes; the notification and
// analytics services consume, so payloads carry everything needed
// downstream without a callback into the auth database.
package queue

// Queue names. Durable queues, one event type each.
const (
	UserRegisteredQueue         = "auth.user.registered"
	PasswordResetRequestedQueue = "auth.password_reset.requested"
	ReplayDetectedQueue         = "auth.replay.detected"
)

// UserRegisteredEvent is published after a successful registration.
type UserRegisteredEvent struct {
	UserID       uint64 `json:"user_id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	RegisteredAt string `json:"registered_at"`
}

// PasswordResetRequestedEvent carries the raw single-use reset token
// to the notification service, which delivers it to the user out of
// band. The auth service itself only retains the token's hash.
type PasswordResetRequestedEvent struct {
	UserID      uint64 `json:"user_id"`
	Email       string `json:"email"`
	ResetToken  string `json:"reset_token"`
	ExpiresAt   string `json:"expires_at"`
	RequestedAt string `json:"requested_at"`
}

// ReplayDetectedEvent is a security signal: a superseded refresh
// token was presented and the whole session chain was destroyed.
type ReplayDetectedEvent struct {
	SessionID  string `json:"session_id"`
	RemoteIP   string `json:"remote_ip,omitempty"`
	DetectedAt string `json:"detected_at"`
}
