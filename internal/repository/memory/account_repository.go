// Package memory provides a map-backed AccountRepository for tests and
// local experiments. It honours the same uniqueness and not-found contract
// as the SQL backends.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"instadash/internal/domain"
	"instadash/internal/repository"
)

type AccountRepository struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]domain.Account
	now      func() time.Time
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[int64]domain.Account),
		now:      time.Now,
	}
}

// SetClock overrides the time source used for timestamps.
func (r *AccountRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *AccountRepository) Init(context.Context) error { return nil }

func (r *AccountRepository) FindByID(_ context.Context, id int64) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(acc), nil
}

func (r *AccountRepository) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.first(func(a domain.Account) bool { return a.Email == email })
}

func (r *AccountRepository) FindByUsername(_ context.Context, username string) (*domain.Account, error) {
	return r.first(func(a domain.Account) bool { return a.Username == username })
}

// FindByLogin returns the lowest id matching either field.
func (r *AccountRepository) FindByLogin(_ context.Context, login string) (*domain.Account, error) {
	return r.first(func(a domain.Account) bool { return a.Email == login || a.Username == login })
}

func (r *AccountRepository) Create(_ context.Context, reg domain.Registration) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(0, reg.Email, reg.Username); err != nil {
		return nil, err
	}

	r.nextID++
	now := r.now().UTC()
	acc := domain.Account{
		ID:           r.nextID,
		Email:        reg.Email,
		Username:     reg.Username,
		PasswordHash: reg.PasswordHash,
		FirstName:    copyString(reg.FirstName),
		LastName:     copyString(reg.LastName),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.accounts[acc.ID] = acc
	return clone(acc), nil
}

func (r *AccountRepository) Update(_ context.Context, id int64, upd domain.AccountUpdate) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	email, username := acc.Email, acc.Username
	if upd.Email != nil {
		email = *upd.Email
	}
	if upd.Username != nil {
		username = *upd.Username
	}
	if err := r.checkUnique(id, email, username); err != nil {
		return nil, err
	}

	acc.Email = email
	acc.Username = username
	if upd.FirstName != nil {
		acc.FirstName = copyString(upd.FirstName)
	}
	if upd.LastName != nil {
		acc.LastName = copyString(upd.LastName)
	}
	acc.UpdatedAt = r.touch(acc.CreatedAt)
	r.accounts[id] = acc
	return clone(acc), nil
}

func (r *AccountRepository) Delete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return false, nil
	}
	delete(r.accounts, id)
	return true, nil
}

func (r *AccountRepository) SetActive(_ context.Context, id int64, active bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	acc.IsActive = active
	acc.UpdatedAt = r.touch(acc.CreatedAt)
	r.accounts[id] = acc
	return clone(acc), nil
}

func (r *AccountRepository) first(match func(domain.Account) bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if acc := r.accounts[id]; match(acc) {
			return clone(acc), nil
		}
	}
	return nil, repository.ErrNotFound
}

// checkUnique must be called with mu held. self is excluded from the scan.
func (r *AccountRepository) checkUnique(self int64, email, username string) error {
	var usernameTaken bool
	for id, acc := range r.accounts {
		if id == self {
			continue
		}
		if acc.Email == email {
			return &repository.DuplicateKeyError{Field: repository.FieldEmail}
		}
		if acc.Username == username {
			usernameTaken = true
		}
	}
	if usernameTaken {
		return &repository.DuplicateKeyError{Field: repository.FieldUsername}
	}
	return nil
}

func (r *AccountRepository) touch(createdAt time.Time) time.Time {
	now := r.now().UTC()
	if now.Before(createdAt) {
		return createdAt
	}
	return now
}

func clone(acc domain.Account) *domain.Account {
	acc.FirstName = copyString(acc.FirstName)
	acc.LastName = copyString(acc.LastName)
	return &acc
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
