package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instadash/internal/domain"
	"instadash/internal/repository"
)

func TestCreate_ConcurrentSameEmail(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, domain.Registration{
				Email:        "race@example.com",
				Username:     fmt.Sprintf("racer%d", i),
				PasswordHash: "h",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, repository.ErrDuplicateKey):
				dupes++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 19, dupes)
}

func TestFindByLogin_FirstMatchByID(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()

	// a's email equals b's username
	a, err := repo.Create(ctx, domain.Registration{Email: "shared", Username: "a", PasswordHash: "h"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, domain.Registration{Email: "b@example.com", Username: "shared", PasswordHash: "h"})
	require.NoError(t, err)

	got, err := repo.FindByLogin(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()

	name := "Ann"
	acc, err := repo.Create(ctx, domain.Registration{Email: "ann@example.com", Username: "ann", PasswordHash: "h", FirstName: &name})
	require.NoError(t, err)

	*acc.FirstName = "changed"
	acc.IsActive = false

	again, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", *again.FirstName)
	assert.True(t, again.IsActive)
}

func TestUpdate_KeepsOwnValues(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()

	acc, err := repo.Create(ctx, domain.Registration{Email: "x@example.com", Username: "x", PasswordHash: "h"})
	require.NoError(t, err)

	// re-submitting the account's own email is not a collision
	email := "x@example.com"
	_, err = repo.Update(ctx, acc.ID, domain.AccountUpdate{Email: &email})
	require.NoError(t, err)
}
