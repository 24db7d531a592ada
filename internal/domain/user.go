package domain

import "time"

// User is the domain model for CRM accounts. Records are owned by the user
// management side of the application; the session manager only reads them.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	CompanyID    *string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitized returns a copy of the user without the password hash.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PasswordHash = ""
	if u.CompanyID != nil {
		companyID := *u.CompanyID
		clone.CompanyID = &companyID
	}
	return &clone
}
