package sqlite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instadash/internal/domain"
	"instadash/internal/repository"
)

var dbSeq atomic.Int64

func newTestRepo(t *testing.T) *AccountRepository {
	t.Helper()
	db, err := Open(fmt.Sprintf("file:accounts_%d?mode=memory&cache=shared", dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewAccountRepository(db).(*AccountRepository)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func strptr(s string) *string { return &s }

func registration(email, username string) domain.Registration {
	return domain.Registration{Email: email, Username: username, PasswordHash: "$argon2id$digest"}
}

func TestCreate_AssignsServerFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	reg := registration("alice@example.com", "alice")
	reg.FirstName = strptr("Alice")

	acc, err := repo.Create(ctx, reg)
	require.NoError(t, err)

	assert.Positive(t, acc.ID)
	assert.Equal(t, "alice@example.com", acc.Email)
	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, "$argon2id$digest", acc.PasswordHash)
	require.NotNil(t, acc.FirstName)
	assert.Equal(t, "Alice", *acc.FirstName)
	assert.Nil(t, acc.LastName)
	assert.True(t, acc.IsActive)
	assert.False(t, acc.IsVerified)
	assert.False(t, acc.CreatedAt.IsZero())
	assert.False(t, acc.UpdatedAt.Before(acc.CreatedAt))
}

func TestCreate_DuplicateKeys(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, registration("alice@example.com", "alice"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, registration("alice@example.com", "other"))
	require.ErrorIs(t, err, repository.ErrDuplicateKey)
	var dup *repository.DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, repository.FieldEmail, dup.Field)

	_, err = repo.Create(ctx, registration("other@example.com", "alice"))
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, repository.FieldUsername, dup.Field)

	// the failed inserts left nothing behind
	_, err = repo.FindByEmail(ctx, "other@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFinders(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, registration("bob@example.com", "bob"))
	require.NoError(t, err)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byID.ID)

	byEmail, err := repo.FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byUsername, err := repo.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUsername.ID)

	for _, login := range []string{"bob", "bob@example.com"} {
		got, err := repo.FindByLogin(ctx, login)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	}

	// lookups are case-sensitive as stored
	_, err = repo.FindByEmail(ctx, "BOB@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.FindByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.FindByID(ctx, 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdate_Partial(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	reg := registration("carol@example.com", "carol")
	reg.LastName = strptr("King")
	created, err := repo.Create(ctx, reg)
	require.NoError(t, err)

	later := created.CreatedAt.Add(time.Minute)
	repo.now = func() time.Time { return later }

	updated, err := repo.Update(ctx, created.ID, domain.AccountUpdate{FirstName: strptr("Carol")})
	require.NoError(t, err)

	assert.Equal(t, "carol@example.com", updated.Email)
	assert.Equal(t, "carol", updated.Username)
	require.NotNil(t, updated.FirstName)
	assert.Equal(t, "Carol", *updated.FirstName)
	require.NotNil(t, updated.LastName)
	assert.Equal(t, "King", *updated.LastName)
	assert.WithinDuration(t, later, updated.UpdatedAt, time.Millisecond)

	_, err = repo.Update(ctx, 4242, domain.AccountUpdate{FirstName: strptr("x")})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdate_DuplicateRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, registration("dave@example.com", "dave"))
	require.NoError(t, err)
	erin, err := repo.Create(ctx, registration("erin@example.com", "erin"))
	require.NoError(t, err)

	_, err = repo.Update(ctx, erin.ID, domain.AccountUpdate{
		FirstName: strptr("Erin"),
		Username:  strptr("dave"),
	})
	require.ErrorIs(t, err, repository.ErrDuplicateKey)

	reloaded, err := repo.FindByID(ctx, erin.ID)
	require.NoError(t, err)
	assert.Equal(t, "erin", reloaded.Username)
	assert.Nil(t, reloaded.FirstName)
}

func TestDeleteAndSetActive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc, err := repo.Create(ctx, registration("frank@example.com", "frank"))
	require.NoError(t, err)

	inactive, err := repo.SetActive(ctx, acc.ID, false)
	require.NoError(t, err)
	assert.False(t, inactive.IsActive)

	active, err := repo.SetActive(ctx, acc.ID, true)
	require.NoError(t, err)
	assert.True(t, active.IsActive)

	deleted, err := repo.Delete(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.SetActive(ctx, acc.ID, false)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreate_RollsBackOnStoreError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err = repo.Create(context.Background(), registration("gina@example.com", "gina"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "insert user: disk I/O error"))
	assert.NotErrorIs(t, err, repository.ErrDuplicateKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_CommitsTransaction(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM users WHERE id = \?`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := repo.Delete(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
