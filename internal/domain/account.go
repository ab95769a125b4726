package domain

import "time"

// Account represents a registered dashboard user.
type Account struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	FirstName    *string
	LastName     *string
	IsActive     bool
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Registration carries the data needed to create an account. PasswordHash
// must already be a digest produced by the password hasher.
type Registration struct {
	Email        string
	Username     string
	PasswordHash string
	FirstName    *string
	LastName     *string
}

// AccountUpdate is a partial profile update; nil fields are left untouched.
type AccountUpdate struct {
	Email     *string
	Username  *string
	FirstName *string
	LastName  *string
}

// Empty reports whether the update carries no fields.
func (u AccountUpdate) Empty() bool {
	return u.Email == nil && u.Username == nil && u.FirstName == nil && u.LastName == nil
}
