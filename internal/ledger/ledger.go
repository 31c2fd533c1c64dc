// Package ledger implements the trade ledger core: executing buys and
// sells against an append-only entry log, and deriving holdings, trade
// history and portfolio valuations from it. Positions are never stored
// as mutable counters; every decision re-derives them from the log so a
// cached count can never drift from the persisted facts.
package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/papertrade/stock-ledger/internal/interfaces"
	"github.com/papertrade/stock-ledger/internal/models"
	"github.com/papertrade/stock-ledger/internal/models/events"
)

// Ledger validates and commits trades for any number of accounts.
// Mutations for one account are serialized through a per-account mutex;
// trades on different accounts proceed in parallel.
type Ledger struct {
	store  interfaces.LedgerStore
	oracle interfaces.PriceOracle
	events interfaces.EventPublisher // optional
	logger zerolog.Logger

	muMap map[string]*sync.Mutex
	mapMu sync.Mutex // protects muMap itself
}

// New creates a Ledger on top of a store and a price oracle. The event
// publisher may be nil, in which case committed trades are not announced.
func New(store interfaces.LedgerStore, oracle interfaces.PriceOracle, publisher interfaces.EventPublisher, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		oracle: oracle,
		events: publisher,
		logger: logger,
		muMap:  make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) accountLock(accountID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	mu, ok := l.muMap[accountID]
	if !ok {
		mu = &sync.Mutex{}
		l.muMap[accountID] = mu
	}
	return mu
}

// Holdings derives the account's net share count per symbol by folding
// over its full entry history. Symbols whose net count is not positive
// are filtered out, not deleted; the entries stay in the ledger. Pure
// read, no side effects.
func (l *Ledger) Holdings(ctx context.Context, accountID string) (map[string]int64, error) {
	entries, err := l.store.EntriesByAccount(ctx, accountID)
	if err != nil {
		return nil, &PersistenceError{Op: "read entries", Err: err}
	}

	net := make(map[string]int64)
	for _, e := range entries {
		net[e.Symbol] += e.Shares
	}
	for symbol, shares := range net {
		if shares <= 0 {
			delete(net, symbol)
		}
	}
	return net, nil
}

// ExecuteBuy purchases shares at the oracle's current price. On success
// the cash debit and the ledger append commit together; on any error the
// account state is untouched.
func (l *Ledger) ExecuteBuy(ctx context.Context, accountID, symbol string, shares int64) (models.TradeEntry, error) {
	symbol, err := validateOrder(symbol, shares)
	if err != nil {
		return models.TradeEntry{}, err
	}

	quote, err := l.lookup(ctx, symbol)
	if err != nil {
		return models.TradeEntry{}, err
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	cash, err := l.store.CashBalance(ctx, accountID)
	if err != nil {
		return models.TradeEntry{}, &PersistenceError{Op: "read balance", Err: err}
	}

	cost := quote.Price.Mul(decimal.NewFromInt(shares))
	if cost.GreaterThan(cash) {
		return models.TradeEntry{}, &InsufficientFundsError{
			Symbol:    symbol,
			Shares:    shares,
			Cost:      cost,
			Available: cash,
		}
	}

	entry := models.TradeEntry{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Symbol:    symbol,
		Shares:    shares,
		Price:     quote.Price,
	}
	newBalance := cash.Sub(cost)

	committed, err := l.store.ApplyTrade(ctx, accountID, newBalance, entry)
	if err != nil {
		return models.TradeEntry{}, &PersistenceError{Op: "commit buy", Err: err}
	}

	l.logger.Info().
		Str("account_id", accountID).
		Str("symbol", symbol).
		Int64("shares", shares).
		Str("price", quote.Price.String()).
		Str("cash_after", newBalance.String()).
		Msg("buy executed")

	l.announce(ctx, committed, newBalance)
	return committed, nil
}

// ExecuteSell sells shares at the oracle's current price. The net
// holding is re-derived from the ledger at validation time, under the
// same account lock that guards the commit, so an oversell can never
// slip past a stale cached position.
func (l *Ledger) ExecuteSell(ctx context.Context, accountID, symbol string, shares int64) (models.TradeEntry, error) {
	symbol, err := validateOrder(symbol, shares)
	if err != nil {
		return models.TradeEntry{}, err
	}

	quote, err := l.lookup(ctx, symbol)
	if err != nil {
		return models.TradeEntry{}, err
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	holdings, err := l.Holdings(ctx, accountID)
	if err != nil {
		return models.TradeEntry{}, err
	}
	held := holdings[symbol]
	if shares > held {
		return models.TradeEntry{}, &InsufficientSharesError{
			Symbol:    symbol,
			Requested: shares,
			Held:      held,
		}
	}

	cash, err := l.store.CashBalance(ctx, accountID)
	if err != nil {
		return models.TradeEntry{}, &PersistenceError{Op: "read balance", Err: err}
	}

	proceeds := quote.Price.Mul(decimal.NewFromInt(shares))
	entry := models.TradeEntry{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Symbol:    symbol,
		Shares:    -shares,
		Price:     quote.Price,
	}
	newBalance := cash.Add(proceeds)

	committed, err := l.store.ApplyTrade(ctx, accountID, newBalance, entry)
	if err != nil {
		return models.TradeEntry{}, &PersistenceError{Op: "commit sell", Err: err}
	}

	l.logger.Info().
		Str("account_id", accountID).
		Str("symbol", symbol).
		Int64("shares", shares).
		Str("price", quote.Price.String()).
		Str("cash_after", newBalance.String()).
		Msg("sell executed")

	l.announce(ctx, committed, newBalance)
	return committed, nil
}

// Snapshot prices every active holding at the oracle's current quote and
// totals it with the cash balance. A symbol the oracle can no longer
// resolve (e.g. delisted) degrades that row instead of failing the whole
// snapshot; degraded rows carry the reason and contribute nothing to net
// worth.
func (l *Ledger) Snapshot(ctx context.Context, accountID string) (models.PortfolioSnapshot, error) {
	holdings, err := l.Holdings(ctx, accountID)
	if err != nil {
		return models.PortfolioSnapshot{}, err
	}

	cash, err := l.store.CashBalance(ctx, accountID)
	if err != nil {
		return models.PortfolioSnapshot{}, &PersistenceError{Op: "read balance", Err: err}
	}

	symbols := make([]string, 0, len(holdings))
	for symbol := range holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	snapshot := models.PortfolioSnapshot{
		Positions: make([]models.Position, 0, len(symbols)),
		Cash:      cash,
		NetWorth:  cash,
	}
	for _, symbol := range symbols {
		shares := holdings[symbol]
		quote, err := l.lookup(ctx, symbol)
		if err != nil {
			l.logger.Warn().
				Str("account_id", accountID).
				Str("symbol", symbol).
				Err(err).
				Msg("snapshot row degraded")
			snapshot.Positions = append(snapshot.Positions, models.Position{
				Symbol:   symbol,
				Shares:   shares,
				Degraded: true,
				Reason:   err.Error(),
			})
			continue
		}

		value := quote.Price.Mul(decimal.NewFromInt(shares))
		snapshot.Positions = append(snapshot.Positions, models.Position{
			Symbol:    symbol,
			Name:      quote.Name,
			Shares:    shares,
			UnitPrice: quote.Price,
			Value:     value,
		})
		snapshot.NetWorth = snapshot.NetWorth.Add(value)
	}
	return snapshot, nil
}

// History returns the account's full trade log in insertion order,
// sells and closed positions included. Read-only.
func (l *Ledger) History(ctx context.Context, accountID string) ([]models.TradeEntry, error) {
	entries, err := l.store.EntriesByAccount(ctx, accountID)
	if err != nil {
		return nil, &PersistenceError{Op: "read entries", Err: err}
	}
	return entries, nil
}

// Cash returns the account's current cash balance.
func (l *Ledger) Cash(ctx context.Context, accountID string) (decimal.Decimal, error) {
	cash, err := l.store.CashBalance(ctx, accountID)
	if err != nil {
		return decimal.Zero, &PersistenceError{Op: "read balance", Err: err}
	}
	return cash, nil
}

// validateOrder checks the request shape before any oracle call: symbol
// non-empty after trimming, share count positive. Returns the
// canonical (uppercase) symbol.
func validateOrder(symbol string, shares int64) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", &UnknownSymbolError{}
	}
	if shares <= 0 {
		return "", &InvalidQuantityError{Shares: shares}
	}
	return symbol, nil
}

func (l *Ledger) lookup(ctx context.Context, symbol string) (models.Quote, error) {
	quote, err := l.oracle.Lookup(ctx, symbol)
	switch {
	case errors.Is(err, interfaces.ErrSymbolNotFound):
		return models.Quote{}, &UnknownSymbolError{Symbol: symbol}
	case err != nil:
		return models.Quote{}, &OracleUnavailableError{Symbol: symbol, Err: err}
	}
	return quote, nil
}

// announce publishes a TradeExecuted event, best effort: a publisher
// failure is logged and never fails the already-committed trade.
func (l *Ledger) announce(ctx context.Context, entry models.TradeEntry, cashAfter decimal.Decimal) {
	if l.events == nil {
		return
	}
	evt := events.TradeExecuted{
		EntryID:    entry.ID,
		AccountID:  entry.AccountID,
		Symbol:     entry.Symbol,
		Shares:     entry.Shares,
		Price:      entry.Price,
		CashAfter:  cashAfter,
		OccurredAt: time.Now().UTC(),
	}
	if err := l.events.Publish(ctx, evt); err != nil {
		l.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("trade event publish failed")
	}
}
