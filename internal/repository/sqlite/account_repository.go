package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"instadash/internal/domain"
	"instadash/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	first_name TEXT NULL,
	last_name TEXT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	is_verified BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const selectAccount = `
SELECT id, email, username, hashed_password, first_name, last_name, is_active, is_verified, created_at, updated_at
FROM users
`

type AccountRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

func (r *AccountRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	return getAccount(ctx, r.db, `WHERE id = ?`, id)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return getAccount(ctx, r.db, `WHERE email = ?`, email)
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return getAccount(ctx, r.db, `WHERE username = ?`, username)
}

func (r *AccountRepository) FindByLogin(ctx context.Context, login string) (*domain.Account, error) {
	return getAccount(ctx, r.db, `WHERE email = ? OR username = ? LIMIT 1`, login, login)
}

func (r *AccountRepository) Create(ctx context.Context, reg domain.Registration) (*domain.Account, error) {
	now := r.now().UTC()

	var account *domain.Account
	err := withTx(ctx, r.db, func(tx dbtx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO users (email, username, hashed_password, first_name, last_name, is_active, is_verified, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)`,
			reg.Email,
			reg.Username,
			reg.PasswordHash,
			nullable(reg.FirstName),
			nullable(reg.LastName),
			now,
			now,
		)
		if err != nil {
			return translateError("insert user", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("user last insert id: %w", err)
		}

		account, err = getAccount(ctx, tx, `WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *AccountRepository) Update(ctx context.Context, id int64, upd domain.AccountUpdate) (*domain.Account, error) {
	var account *domain.Account
	err := withTx(ctx, r.db, func(tx dbtx) error {
		current, err := getAccount(ctx, tx, `WHERE id = ?`, id)
		if err != nil {
			return err
		}

		if upd.Email != nil {
			current.Email = *upd.Email
		}
		if upd.Username != nil {
			current.Username = *upd.Username
		}
		if upd.FirstName != nil {
			current.FirstName = upd.FirstName
		}
		if upd.LastName != nil {
			current.LastName = upd.LastName
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE users
SET email = ?, username = ?, first_name = ?, last_name = ?, updated_at = ?
WHERE id = ?`,
			current.Email,
			current.Username,
			nullable(current.FirstName),
			nullable(current.LastName),
			r.touch(current.CreatedAt),
			id,
		); err != nil {
			return translateError("update user", err)
		}

		account, err = getAccount(ctx, tx, `WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *AccountRepository) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := withTx(ctx, r.db, func(tx dbtx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete user rows affected: %w", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

func (r *AccountRepository) SetActive(ctx context.Context, id int64, active bool) (*domain.Account, error) {
	var account *domain.Account
	err := withTx(ctx, r.db, func(tx dbtx) error {
		current, err := getAccount(ctx, tx, `WHERE id = ?`, id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
			active, r.touch(current.CreatedAt), id,
		); err != nil {
			return fmt.Errorf("update user active flag: %w", err)
		}

		account, err = getAccount(ctx, tx, `WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// touch returns the new updated_at, never earlier than createdAt.
func (r *AccountRepository) touch(createdAt time.Time) time.Time {
	now := r.now().UTC()
	if now.Before(createdAt) {
		return createdAt
	}
	return now
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func getAccount(ctx context.Context, q dbtx, where string, args ...any) (*domain.Account, error) {
	row := q.QueryRowContext(ctx, selectAccount+where, args...)
	return scanAccount(row)
}

func scanAccount(row interface {
	Scan(dest ...any) error
}) (*domain.Account, error) {
	var (
		account   domain.Account
		firstName sql.NullString
		lastName  sql.NullString
	)
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Username,
		&account.PasswordHash,
		&firstName,
		&lastName,
		&account.IsActive,
		&account.IsVerified,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if firstName.Valid {
		account.FirstName = &firstName.String
	}
	if lastName.Valid {
		account.LastName = &lastName.String
	}
	return &account, nil
}

func translateError(op string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && isUniqueViolation(sqliteErr) {
		dup := &repository.DuplicateKeyError{Err: err}
		msg := sqliteErr.Error()
		switch {
		case strings.Contains(msg, "users.email"):
			dup.Field = repository.FieldEmail
		case strings.Contains(msg, "users.username"):
			dup.Field = repository.FieldUsername
		}
		return dup
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err *sqlite.Error) bool {
	code := err.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// primary result code only when extended codes are off
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE")
}
