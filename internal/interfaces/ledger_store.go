package interfaces

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/papertrade/stock-ledger/internal/models"
)

var (
	// ErrAccountNotFound is returned when an account id or username does
	// not resolve to a stored account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUsernameTaken is returned by CreateAccount on a duplicate username.
	ErrUsernameTaken = errors.New("username already taken")
)

// LedgerStore persists accounts and the append-only trade log. Entry
// timestamps are assigned at write time and are monotonically
// non-decreasing per account.
type LedgerStore interface {
	// AppendEntry appends a single entry outside of a trade, e.g. an
	// offsetting correction. Returns the committed entry with its
	// store-assigned timestamp.
	AppendEntry(ctx context.Context, entry models.TradeEntry) (models.TradeEntry, error)

	// EntriesByAccount returns the account's entries in insertion order.
	EntriesByAccount(ctx context.Context, accountID string) ([]models.TradeEntry, error)

	CashBalance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// ApplyTrade writes the new cash balance and appends the entry as one
	// atomic unit: on error neither effect is visible.
	ApplyTrade(ctx context.Context, accountID string, newBalance decimal.Decimal, entry models.TradeEntry) (models.TradeEntry, error)

	CreateAccount(ctx context.Context, account models.Account) error
	AccountByUsername(ctx context.Context, username string) (models.Account, error)
	AccountByID(ctx context.Context, id string) (models.Account, error)
}
