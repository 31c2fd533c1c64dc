// Package memory is an in-memory LedgerStore, used in tests and when no
// database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/stock-ledger/internal/interfaces"
	"github.com/papertrade/stock-ledger/internal/models"
)

// Store keeps accounts and trade entries in process memory. A single
// mutex guards all state, which makes ApplyTrade trivially atomic: the
// balance write and the append happen under one critical section or not
// at all.
type Store struct {
	mu        sync.Mutex
	entries   map[string][]models.TradeEntry // account id -> insertion-ordered log
	accounts  map[string]models.Account      // account id -> account
	usernames map[string]string              // username -> account id
	lastTS    map[string]time.Time           // account id -> last assigned entry timestamp

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		entries:   make(map[string][]models.TradeEntry),
		accounts:  make(map[string]models.Account),
		usernames: make(map[string]string),
		lastTS:    make(map[string]time.Time),
		now:       time.Now,
	}
}

// entryTime assigns the next timestamp for the account, clamped so the
// per-account sequence never goes backwards even if the wall clock does.
// Caller must hold s.mu.
func (s *Store) entryTime(accountID string) time.Time {
	ts := s.now().UTC()
	if last, ok := s.lastTS[accountID]; ok && ts.Before(last) {
		ts = last
	}
	s.lastTS[accountID] = ts
	return ts
}

func (s *Store) AppendEntry(ctx context.Context, entry models.TradeEntry) (models.TradeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[entry.AccountID]; !ok {
		return models.TradeEntry{}, interfaces.ErrAccountNotFound
	}
	entry.CreatedAt = s.entryTime(entry.AccountID)
	s.entries[entry.AccountID] = append(s.entries[entry.AccountID], entry)
	return entry, nil
}

func (s *Store) EntriesByAccount(ctx context.Context, accountID string) ([]models.TradeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// copy so callers cannot mutate the log
	copied := make([]models.TradeEntry, len(s.entries[accountID]))
	copy(copied, s.entries[accountID])
	return copied, nil
}

func (s *Store) CashBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return decimal.Zero, interfaces.ErrAccountNotFound
	}
	return account.Cash, nil
}

func (s *Store) ApplyTrade(ctx context.Context, accountID string, newBalance decimal.Decimal, entry models.TradeEntry) (models.TradeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return models.TradeEntry{}, interfaces.ErrAccountNotFound
	}

	entry.AccountID = accountID
	entry.CreatedAt = s.entryTime(accountID)

	account.Cash = newBalance
	s.accounts[accountID] = account
	s.entries[accountID] = append(s.entries[accountID], entry)
	return entry, nil
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[account.Username]; taken {
		return interfaces.ErrUsernameTaken
	}
	s.accounts[account.ID] = account
	s.usernames[account.Username] = account.ID
	return nil
}

func (s *Store) AccountByUsername(ctx context.Context, username string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usernames[username]
	if !ok {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	return account, nil
}

var _ interfaces.LedgerStore = (*Store)(nil)
