package models

import "time"

// LoginAttempt is an append-only record of one failed login.
type LoginAttempt struct {
	Email       string
	IPAddress   string
	UserAgent   string
	AttemptedAt time.Time
}
