package domain

import "time"

// RefreshToken is a persisted, opaque, long-lived credential bound to one user.
// Rows are immutable: they are only created and deleted.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token can no longer be exchanged at now. The
// expiry instant itself is already out of range.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
