package models

import "time"

// BlacklistEntry records an access token revoked before its natural expiry.
// ExpiresAt is copied from the token so the row can be purged afterwards.
type BlacklistEntry struct {
	JTI       string
	ExpiresAt time.Time
	CreatedAt time.Time
}
