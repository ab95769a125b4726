package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"instadash/internal/domain"
	"instadash/internal/repository"
)

const pgUniqueViolation = "23505"

// matches the table and index names of the existing users schema
const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id SERIAL PRIMARY KEY,
	email VARCHAR NOT NULL,
	username VARCHAR NOT NULL,
	hashed_password VARCHAR NOT NULL,
	first_name VARCHAR NULL,
	last_name VARCHAR NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_users_email ON users (email);
CREATE UNIQUE INDEX IF NOT EXISTS ix_users_username ON users (username);
`

const accountColumns = `id, email, username, hashed_password, first_name, last_name, is_active, is_verified, created_at, updated_at`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) repository.AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) Init(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	return getAccount(ctx, r.pool, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return getAccount(ctx, r.pool, `SELECT `+accountColumns+` FROM users WHERE email = $1`, email)
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return getAccount(ctx, r.pool, `SELECT `+accountColumns+` FROM users WHERE username = $1`, username)
}

func (r *AccountRepository) FindByLogin(ctx context.Context, login string) (*domain.Account, error) {
	return getAccount(ctx, r.pool, `SELECT `+accountColumns+` FROM users WHERE email = $1 OR username = $1 LIMIT 1`, login)
}

func (r *AccountRepository) Create(ctx context.Context, reg domain.Registration) (*domain.Account, error) {
	var account *domain.Account
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		account, err = getAccount(ctx, tx, `
INSERT INTO users (email, username, hashed_password, first_name, last_name, is_active, is_verified)
VALUES ($1, $2, $3, $4, $5, TRUE, FALSE)
RETURNING `+accountColumns,
			reg.Email, reg.Username, reg.PasswordHash, reg.FirstName, reg.LastName,
		)
		return err
	})
	if err != nil {
		return nil, translateError("insert user", err)
	}
	return account, nil
}

func (r *AccountRepository) Update(ctx context.Context, id int64, upd domain.AccountUpdate) (*domain.Account, error) {
	var account *domain.Account
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		account, err = getAccount(ctx, tx, `
UPDATE users SET
	email = COALESCE($2, email),
	username = COALESCE($3, username),
	first_name = COALESCE($4, first_name),
	last_name = COALESCE($5, last_name),
	updated_at = GREATEST(now(), created_at)
WHERE id = $1
RETURNING `+accountColumns,
			id, upd.Email, upd.Username, upd.FirstName, upd.LastName,
		)
		return err
	})
	if err != nil {
		return nil, translateError("update user", err)
	}
	return account, nil
}

func (r *AccountRepository) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return deleted, nil
}

func (r *AccountRepository) SetActive(ctx context.Context, id int64, active bool) (*domain.Account, error) {
	var account *domain.Account
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		account, err = getAccount(ctx, tx, `
UPDATE users SET is_active = $2, updated_at = GREATEST(now(), created_at)
WHERE id = $1
RETURNING `+accountColumns,
			id, active,
		)
		return err
	})
	if err != nil {
		return nil, translateError("update user active flag", err)
	}
	return account, nil
}

func getAccount(ctx context.Context, q querier, sql string, args ...any) (*domain.Account, error) {
	var (
		account   domain.Account
		createdAt time.Time
		updatedAt time.Time
	)
	err := q.QueryRow(ctx, sql, args...).Scan(
		&account.ID,
		&account.Email,
		&account.Username,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.IsActive,
		&account.IsVerified,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	account.CreatedAt = createdAt.UTC()
	account.UpdatedAt = updatedAt.UTC()
	return &account, nil
}

func translateError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		dup := &repository.DuplicateKeyError{Err: err}
		switch {
		case strings.Contains(pgErr.ConstraintName, "email"):
			dup.Field = repository.FieldEmail
		case strings.Contains(pgErr.ConstraintName, "username"):
			dup.Field = repository.FieldUsername
		}
		return dup
	}
	return fmt.Errorf("%s: %w", op, err)
}
