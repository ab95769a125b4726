package repository

import (
	"context"
	"errors"

	"instadash/internal/domain"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateKey is returned when a write would violate the unique
	// email or username constraint. The transaction has been rolled back.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Unique columns reported by DuplicateKeyError.
const (
	FieldEmail    = "email"
	FieldUsername = "username"
)

// DuplicateKeyError identifies the column that collided when the backend
// reports it. It matches ErrDuplicateKey with errors.Is.
type DuplicateKeyError struct {
	Field string
	Err   error
}

func (e *DuplicateKeyError) Error() string {
	if e.Field == "" {
		return ErrDuplicateKey.Error()
	}
	return ErrDuplicateKey.Error() + " on " + e.Field
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

// AccountRepository persists accounts. Every mutation runs in its own
// transaction and returns the refreshed record on success.
type AccountRepository interface {
	Init(ctx context.Context) error
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	// FindByLogin matches login against either email or username. If two
	// different accounts match, which one is returned is unspecified.
	FindByLogin(ctx context.Context, login string) (*domain.Account, error)
	Create(ctx context.Context, reg domain.Registration) (*domain.Account, error)
	Update(ctx context.Context, id int64, upd domain.AccountUpdate) (*domain.Account, error)
	Delete(ctx context.Context, id int64) (bool, error)
	SetActive(ctx context.Context, id int64, active bool) (*domain.Account, error)
}
