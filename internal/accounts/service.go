// Package accounts handles registration and credential checks. The
// trading core trusts the account id this package hands out and does no
// authentication of its own.
package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/papertrade/stock-ledger/internal/interfaces"
	"github.com/papertrade/stock-ledger/internal/models"
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Service registers accounts with a fixed starting cash grant and
// verifies credentials on login.
type Service struct {
	store        interfaces.LedgerStore
	startingCash decimal.Decimal
	logger       zerolog.Logger
}

func NewService(store interfaces.LedgerStore, startingCash decimal.Decimal, logger zerolog.Logger) *Service {
	return &Service{
		store:        store,
		startingCash: startingCash,
		logger:       logger,
	}
}

func (s *Service) Register(ctx context.Context, username, password string) (models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.Account{}, ErrMissingCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Account{}, err
	}

	account := models.Account{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		Cash:         s.startingCash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return models.Account{}, err
	}

	s.logger.Info().
		Str("account_id", account.ID).
		Str("username", username).
		Str("starting_cash", s.startingCash.String()).
		Msg("account registered")
	return account, nil
}

// Authenticate returns the account for valid credentials. Unknown
// usernames and wrong passwords collapse into the same error so the
// endpoint does not leak which usernames exist.
func (s *Service) Authenticate(ctx context.Context, username, password string) (models.Account, error) {
	account, err := s.store.AccountByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, interfaces.ErrAccountNotFound) {
		return models.Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Account{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return models.Account{}, ErrInvalidCredentials
	}
	return account, nil
}
