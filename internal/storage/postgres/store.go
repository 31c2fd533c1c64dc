// Package postgres is the durable LedgerStore backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/papertrade/stock-ledger/internal/interfaces"
	"github.com/papertrade/stock-ledger/internal/models"
)

const uniqueViolation = "23505"

// Store implements interfaces.LedgerStore on top of sqlx. Every query
// runs under a per-call timeout; ApplyTrade runs the balance update and
// the entry insert inside one database transaction.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// EnsureSchema creates the tables if they do not exist. The seq column
// preserves insertion order; created_at is clamped at insert time so it
// never decreases within an account.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS accounts (
			id            uuid PRIMARY KEY,
			username      text NOT NULL UNIQUE,
			password_hash text NOT NULL,
			cash          numeric(20,4) NOT NULL CHECK (cash >= 0),
			created_at    timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS trade_entries (
			seq        bigserial PRIMARY KEY,
			id         uuid NOT NULL UNIQUE,
			account_id uuid NOT NULL REFERENCES accounts(id),
			symbol     text NOT NULL,
			shares     bigint NOT NULL CHECK (shares <> 0),
			price      numeric(20,4) NOT NULL CHECK (price > 0),
			created_at timestamptz NOT NULL
		);
		CREATE INDEX IF NOT EXISTS trade_entries_account_idx
			ON trade_entries (account_id, seq);`

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// insertEntry is shared by AppendEntry and ApplyTrade; q is either the
// DB or an open transaction. The GREATEST clamp keeps created_at
// monotonically non-decreasing per account.
func insertEntry(ctx context.Context, q sqlx.ExtContext, entry models.TradeEntry) (models.TradeEntry, error) {
	const query = `
		INSERT INTO trade_entries (id, account_id, symbol, shares, price, created_at)
		VALUES ($1, $2, $3, $4, $5, GREATEST(
			now(),
			coalesce((SELECT max(created_at) FROM trade_entries WHERE account_id = $2), now())
		))
		RETURNING created_at`

	err := sqlx.GetContext(ctx, q, &entry.CreatedAt, query,
		entry.ID, entry.AccountID, entry.Symbol, entry.Shares, entry.Price)
	if err != nil {
		return models.TradeEntry{}, fmt.Errorf("insert trade entry: %w", err)
	}
	return entry, nil
}

func (s *Store) AppendEntry(ctx context.Context, entry models.TradeEntry) (models.TradeEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return insertEntry(ctx, s.db, entry)
}

func (s *Store) EntriesByAccount(ctx context.Context, accountID string) ([]models.TradeEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const query = `
		SELECT id, account_id, symbol, shares, price, created_at
		FROM trade_entries
		WHERE account_id = $1
		ORDER BY seq ASC`

	entries := []models.TradeEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, accountID); err != nil {
		return nil, fmt.Errorf("select trade entries: %w", err)
	}
	return entries, nil
}

func (s *Store) CashBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var cash decimal.Decimal
	err := s.db.GetContext(ctx, &cash, `SELECT cash FROM accounts WHERE id = $1`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, interfaces.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("select cash balance: %w", err)
	}
	return cash, nil
}

func (s *Store) ApplyTrade(ctx context.Context, accountID string, newBalance decimal.Decimal, entry models.TradeEntry) (committed models.TradeEntry, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.TradeEntry{}, fmt.Errorf("begin trade tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE accounts SET cash = $1 WHERE id = $2`, newBalance, accountID)
	if err != nil {
		return models.TradeEntry{}, fmt.Errorf("update cash balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.TradeEntry{}, interfaces.ErrAccountNotFound
	}

	entry.AccountID = accountID
	committed, err = insertEntry(ctx, tx, entry)
	if err != nil {
		return models.TradeEntry{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.TradeEntry{}, fmt.Errorf("commit trade tx: %w", err)
	}
	return committed, nil
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const query = `
		INSERT INTO accounts (id, username, password_hash, cash, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.Username, account.PasswordHash, account.Cash, account.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return interfaces.ErrUsernameTaken
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) AccountByUsername(ctx context.Context, username string) (models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const query = `
		SELECT id, username, password_hash, cash, created_at
		FROM accounts WHERE username = $1`

	var account models.Account
	err := s.db.GetContext(ctx, &account, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("select account by username: %w", err)
	}
	return account, nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const query = `
		SELECT id, username, password_hash, cash, created_at
		FROM accounts WHERE id = $1`

	var account models.Account
	err := s.db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("select account by id: %w", err)
	}
	return account, nil
}

var _ interfaces.LedgerStore = (*Store)(nil)
