package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const sessionIssuer = "voxroom"

// AccountStore persists registered users.
type AccountStore interface {
	CreateAccount(ctx context.Context, username, passwordHash string) (domain.Account, error)
	FindAccount(ctx context.Context, username string) (domain.Account, error)
}

// UserClaims is the payload of a login session token. Subject carries the account id.
type UserClaims struct {
	Username string `json:"username" validate:"required,max=64"`
	jwt.RegisteredClaims
}

// Credentials is what register and login accept.
type Credentials struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required,max=72"`
}

type AccountsConfig struct {
	Secret     string
	SessionTTL time.Duration
	// Reserved names cannot be registered, so no user can pose as the agent.
	Reserved []string
}

// Session is a signed-in user.
type Session struct {
	Token   string
	Account domain.Account
}

type Accounts struct {
	store    AccountStore
	cfg      AccountsConfig
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

func NewAccounts(store AccountStore, cfg AccountsConfig) *Accounts {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Accounts{
		store:    store,
		cfg:      cfg,
		validate: validator.New(),
		logger:   log.With().Str("module", "auth").Logger(),
		now:      time.Now,
	}
}

func (a *Accounts) check(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if err := a.validate.Struct(Credentials{Username: username, Password: password}); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
	}
	if err := domain.ValidateIdentity(domain.Identity(username)); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
	}
	return username, nil
}

// Register creates an account and signs it in. Taken or reserved names fail with domain.ErrUsernameTaken.
func (a *Accounts) Register(ctx context.Context, username, password string) (Session, error) {
	username, err := a.check(username, password)
	if err != nil {
		return Session{}, err
	}
	for _, r := range a.cfg.Reserved {
		if strings.EqualFold(r, username) {
			return Session{}, domain.ErrUsernameTaken
		}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	acc, err := a.store.CreateAccount(ctx, username, hash)
	if err != nil {
		return Session{}, err
	}
	a.logger.Info().Str("username", acc.Username).Msg("account registered")
	return a.session(acc)
}

// Login checks the password. Unknown users and wrong passwords both fail with domain.ErrInvalidCredentials.
func (a *Accounts) Login(ctx context.Context, username, password string) (Session, error) {
	username, err := a.check(username, password)
	if err != nil {
		return Session{}, err
	}
	acc, err := a.store.FindAccount(ctx, username)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return Session{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	ok, err := ComparePassword(password, acc.PasswordHash)
	if err != nil {
		return Session{}, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return Session{}, domain.ErrInvalidCredentials
	}
	return a.session(acc)
}

func (a *Accounts) session(acc domain.Account) (Session, error) {
	now := a.now()
	claims := &UserClaims{
		Username: acc.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.SessionTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.Secret))
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{Token: token, Account: acc}, nil
}

// Verify parses a session token. Every failure wraps domain.ErrUnauthenticated.
func (a *Accounts) Verify(token string) (*UserClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &UserClaims{}, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(*UserClaims)
	if !ok || !parsed.Valid {
		return nil, domain.ErrUnauthenticated
	}
	if err := a.validate.Struct(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	return claims, nil
}
