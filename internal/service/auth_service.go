package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"instadash/internal/domain"
	"instadash/internal/repository"
)

var (
	// ErrEmailTaken is returned when registering or updating to an email in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken is returned when registering or updating to a username in use.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidCredentials covers both an unknown login and a wrong password.
	ErrInvalidCredentials = errors.New("incorrect login credentials")
	// ErrAccountInactive indicates valid credentials for a disabled account.
	ErrAccountInactive = errors.New("inactive user")
	// ErrInvalidToken indicates the bearer token could not be resolved to an account.
	ErrInvalidToken = errors.New("could not validate credentials")
	// ErrAccountNotFound is returned by account management operations for an unknown id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidInput wraps field validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPersistence wraps any other store failure.
	ErrPersistence = errors.New("persistence error")
)

// TokenType is reported to clients alongside the access token.
const TokenType = "bearer"

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// TokenCodec issues and decodes bearer tokens.
type TokenCodec interface {
	Issue(subject string, ttl time.Duration) (string, error)
	Decode(token string) (string, error)
	TTL() time.Duration
}

// RegisterInput is the data accepted by Register.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName *string
	LastName  *string
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string
	TokenType   string
}

// AuthService describes account registration, login and identity resolution.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.Account, error)
	Login(ctx context.Context, login, password string) (*Token, error)
	ResolveCurrentIdentity(ctx context.Context, token string) (*domain.Account, error)
	UpdateProfile(ctx context.Context, id int64, upd domain.AccountUpdate) (*domain.Account, error)
	SetActive(ctx context.Context, id int64, active bool) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id int64) (bool, error)
}

type authService struct {
	accounts repository.AccountRepository
	hasher   PasswordHasher
	tokens   TokenCodec
	logger   logrus.FieldLogger
}

func NewAuthService(accounts repository.AccountRepository, hasher PasswordHasher, tokens TokenCodec, logger logrus.FieldLogger) AuthService {
	return &authService{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		logger:   logger,
	}
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	if _, err := s.accounts.FindByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, s.persistence("lookup email", err)
	}

	if _, err := s.accounts.FindByUsername(ctx, in.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, s.persistence("lookup username", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.persistence("hash password", err)
	}

	account, err := s.accounts.Create(ctx, domain.Registration{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	})
	if err != nil {
		// a concurrent registration won the race past the pre-checks
		if mapped := duplicateError(err); mapped != nil {
			return nil, mapped
		}
		return nil, s.persistence("create account", err)
	}

	s.logger.WithField("account_id", account.ID).Info("account registered")
	return sanitizeAccount(account), nil
}

func (s *authService) Login(ctx context.Context, login, password string) (*Token, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, s.persistence("lookup login", err)
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	access, err := s.tokens.Issue(strconv.FormatInt(account.ID, 10), s.tokens.TTL())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Token{AccessToken: access, TokenType: TokenType}, nil
}

func (s *authService) ResolveCurrentIdentity(ctx context.Context, token string) (*domain.Account, error) {
	subject, err := s.tokens.Decode(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrInvalidToken
	}

	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, s.persistence("load account", err)
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}
	return sanitizeAccount(account), nil
}

func (s *authService) UpdateProfile(ctx context.Context, id int64, upd domain.AccountUpdate) (*domain.Account, error) {
	if upd.Email != nil {
		trimmed := strings.TrimSpace(*upd.Email)
		upd.Email = &trimmed
	}
	if upd.Username != nil {
		trimmed := strings.TrimSpace(*upd.Username)
		upd.Username = &trimmed
	}
	if err := validateUpdate(upd); err != nil {
		return nil, err
	}

	account, err := s.accounts.Update(ctx, id, upd)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		if mapped := duplicateError(err); mapped != nil {
			return nil, mapped
		}
		return nil, s.persistence("update account", err)
	}
	return sanitizeAccount(account), nil
}

func (s *authService) SetActive(ctx context.Context, id int64, active bool) (*domain.Account, error) {
	account, err := s.accounts.SetActive(ctx, id, active)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, s.persistence("set account active", err)
	}
	s.logger.WithFields(logrus.Fields{"account_id": id, "active": active}).Info("account activation changed")
	return sanitizeAccount(account), nil
}

func (s *authService) DeleteAccount(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.accounts.Delete(ctx, id)
	if err != nil {
		return false, s.persistence("delete account", err)
	}
	return deleted, nil
}

func (s *authService) persistence(op string, err error) error {
	s.logger.WithError(err).Errorf("%s failed", op)
	return fmt.Errorf("%w: %s", ErrPersistence, op)
}

func duplicateError(err error) error {
	var dup *repository.DuplicateKeyError
	if !errors.As(err, &dup) {
		return nil
	}
	switch dup.Field {
	case repository.FieldEmail:
		return ErrEmailTaken
	case repository.FieldUsername:
		return ErrUsernameTaken
	}
	return nil
}

func validateRegistration(in RegisterInput) error {
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(in.Password); n < 8 || n > 100 {
		return fmt.Errorf("%w: password must be 8-100 characters", ErrInvalidInput)
	}
	return validateNames(in.FirstName, in.LastName)
}

func validateUpdate(upd domain.AccountUpdate) error {
	if upd.Email != nil && (*upd.Email == "" || !strings.Contains(*upd.Email, "@")) {
		return fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if upd.Username != nil {
		if err := validateUsername(*upd.Username); err != nil {
			return err
		}
	}
	return validateNames(upd.FirstName, upd.LastName)
}

func validateUsername(username string) error {
	if n := utf8.RuneCountInString(username); n < 3 || n > 50 {
		return fmt.Errorf("%w: username must be 3-50 characters", ErrInvalidInput)
	}
	return nil
}

func validateNames(names ...*string) error {
	for _, name := range names {
		if name != nil && utf8.RuneCountInString(*name) > 100 {
			return fmt.Errorf("%w: names must be at most 100 characters", ErrInvalidInput)
		}
	}
	return nil
}

func sanitizeAccount(account *domain.Account) *domain.Account {
	if account == nil {
		return nil
	}
	clean := *account
	clean.PasswordHash = ""
	return &clean
}
