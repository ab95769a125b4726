package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instadash/internal/repository"
)

func TestTranslateError_UniqueViolation(t *testing.T) {
	cases := map[string]string{
		"ix_users_email":    repository.FieldEmail,
		"ix_users_username": repository.FieldUsername,
		"users_pkey":        "",
	}
	for constraint, field := range cases {
		err := translateError("insert user", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraint})

		require.ErrorIs(t, err, repository.ErrDuplicateKey)
		var dup *repository.DuplicateKeyError
		require.True(t, errors.As(err, &dup))
		assert.Equal(t, field, dup.Field, constraint)
	}
}

func TestTranslateError_Passthrough(t *testing.T) {
	err := translateError("update user", repository.ErrNotFound)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = translateError("insert user", &pgconn.PgError{Code: "23502", Message: "not null"})
	assert.NotErrorIs(t, err, repository.ErrDuplicateKey)
	assert.Contains(t, err.Error(), "insert user")
}
