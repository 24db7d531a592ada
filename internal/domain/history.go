package domain

import "time"

// HistoryAction captures what happened in a history entry.
type HistoryAction string

const (
	HistoryActionLogin     HistoryAction = "login"
	HistoryActionRegister  HistoryAction = "register"
	HistoryActionLogout    HistoryAction = "logout"
	HistoryActionLogoutAll HistoryAction = "logout_all"
)

// HistoryEntry is an immutable audit trail record for a user.
type HistoryEntry struct {
	ID        string
	UserID    string
	Action    HistoryAction
	Details   map[string]any
	IP        string
	CreatedAt time.Time
}
