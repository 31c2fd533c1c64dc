package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/stock-ledger/internal/interfaces"
	"github.com/papertrade/stock-ledger/internal/models"
	"github.com/papertrade/stock-ledger/internal/storage/memory"
)

type fakeOracle struct {
	quotes map[string]models.Quote
	err    error
}

func (f *fakeOracle) Lookup(ctx context.Context, symbol string) (models.Quote, error) {
	if f.err != nil {
		return models.Quote{}, f.err
	}
	quote, ok := f.quotes[symbol]
	if !ok {
		return models.Quote{}, interfaces.ErrSymbolNotFound
	}
	return quote, nil
}

// failingStore makes ApplyTrade fail while delegating everything else,
// to prove a failed commit leaves no partial state behind.
type failingStore struct {
	interfaces.LedgerStore
}

func (f *failingStore) ApplyTrade(ctx context.Context, accountID string, newBalance decimal.Decimal, entry models.TradeEntry) (models.TradeEntry, error) {
	return models.TradeEntry{}, errors.New("disk on fire")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (r *recordingPublisher) Publish(ctx context.Context, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestOracle() *fakeOracle {
	return &fakeOracle{quotes: map[string]models.Quote{
		"NFLX": {Symbol: "NFLX", Name: "Netflix", Price: money("100")},
		"GOOG": {Symbol: "GOOG", Name: "Alphabet", Price: money("100")},
		"AAPL": {Symbol: "AAPL", Name: "Apple", Price: money("150.50")},
	}}
}

func newTestAccount(t *testing.T, store *memory.Store, cash string) string {
	t.Helper()
	account := models.Account{ID: "acct-" + t.Name(), Username: t.Name(), Cash: money(cash)}
	require.NoError(t, store.CreateAccount(context.Background(), account))
	return account.ID
}

func TestExecuteBuy_DebitsCashAndAppendsEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	entry, err := l.ExecuteBuy(ctx, acct, "NFLX", 5)
	require.NoError(t, err)
	assert.Equal(t, "NFLX", entry.Symbol)
	assert.Equal(t, int64(5), entry.Shares)
	assert.True(t, entry.Price.Equal(money("100")), "entry price %s", entry.Price)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	cash, err := l.Cash(ctx, acct)
	require.NoError(t, err)
	assert.True(t, cash.Equal(money("9500")), "cash %s", cash)

	holdings, err := l.Holdings(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"NFLX": 5}, holdings)
}

func TestExecuteBuy_NormalizesSymbolCase(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	entry, err := l.ExecuteBuy(ctx, acct, "  nflx ", 1)
	require.NoError(t, err)
	assert.Equal(t, "NFLX", entry.Symbol)
}

func TestExecuteBuy_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "50")

	_, err := l.ExecuteBuy(ctx, acct, "GOOG", 1)

	var noFunds *InsufficientFundsError
	require.ErrorAs(t, err, &noFunds)
	assert.Equal(t, "GOOG", noFunds.Symbol)
	assert.True(t, noFunds.Cost.Equal(money("100")))
	assert.True(t, noFunds.Available.Equal(money("50")))

	cash, err := l.Cash(ctx, acct)
	require.NoError(t, err)
	assert.True(t, cash.Equal(money("50")), "cash must be untouched, got %s", cash)

	history, err := l.History(ctx, acct)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestExecuteBuy_UnknownSymbol(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteBuy(ctx, acct, "ZZZZ", 1)

	var unknown *UnknownSymbolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ZZZZ", unknown.Symbol)

	history, err := l.History(ctx, acct)
	require.NoError(t, err)
	assert.Empty(t, history, "no entry may be appended on a failed buy")
}

func TestExecuteBuy_EmptySymbolRejectedBeforeLookup(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	oracle := newTestOracle()
	oracle.err = errors.New("oracle must not be called")
	l := New(store, oracle, nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteBuy(ctx, acct, "   ", 1)

	var unknown *UnknownSymbolError
	require.ErrorAs(t, err, &unknown)
}

func TestExecuteBuy_InvalidQuantity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	for _, shares := range []int64{0, -3} {
		_, err := l.ExecuteBuy(ctx, acct, "NFLX", shares)
		var badQty *InvalidQuantityError
		require.ErrorAs(t, err, &badQty, "shares=%d", shares)
		assert.Equal(t, shares, badQty.Shares)
	}
}

func TestExecuteBuy_OracleUnavailable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	oracle := newTestOracle()
	oracle.err = fmt.Errorf("%w: connection refused", interfaces.ErrOracleUnavailable)
	l := New(store, oracle, nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteBuy(ctx, acct, "NFLX", 1)

	var down *OracleUnavailableError
	require.ErrorAs(t, err, &down)
	assert.ErrorIs(t, err, interfaces.ErrOracleUnavailable)
}

func TestExecuteSell_CreditsCashAndReducesHolding(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteBuy(ctx, acct, "NFLX", 5)
	require.NoError(t, err)

	entry, err := l.ExecuteSell(ctx, acct, "NFLX", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), entry.Shares)

	cash, err := l.Cash(ctx, acct)
	require.NoError(t, err)
	assert.True(t, cash.Equal(money("9700")), "cash %s", cash)

	holdings, err := l.Holdings(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"NFLX": 3}, holdings)
}

func TestExecuteSell_InsufficientShares(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteBuy(ctx, acct, "NFLX", 5)
	require.NoError(t, err)

	_, err = l.ExecuteSell(ctx, acct, "NFLX", 10)

	var noShares *InsufficientSharesError
	require.ErrorAs(t, err, &noShares)
	assert.Equal(t, int64(10), noShares.Requested)
	assert.Equal(t, int64(5), noShares.Held)

	cash, err := l.Cash(ctx, acct)
	require.NoError(t, err)
	assert.True(t, cash.Equal(money("9500")), "cash %s", cash)

	history, err := l.History(ctx, acct)
	require.NoError(t, err)
	assert.Len(t, history, 1, "the failed sell must append nothing")
}

func TestExecuteSell_SymbolNeverHeld(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteSell(ctx, acct, "AAPL", 1)

	var noShares *InsufficientSharesError
	require.ErrorAs(t, err, &noShares)
	assert.Equal(t, int64(0), noShares.Held)
}

func TestBuySellRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteBuy(ctx, acct, "AAPL", 7)
	require.NoError(t, err)
	_, err = l.ExecuteSell(ctx, acct, "AAPL", 7)
	require.NoError(t, err)

	cash, err := l.Cash(ctx, acct)
	require.NoError(t, err)
	assert.True(t, cash.Equal(money("10000")), "round trip must restore cash, got %s", cash)

	holdings, err := l.Holdings(ctx, acct)
	require.NoError(t, err)
	assert.NotContains(t, holdings, "AAPL", "closed position must be filtered out")

	history, err := l.History(ctx, acct)
	require.NoError(t, err)
	assert.Len(t, history, 2, "both legs stay in the ledger")
}

func TestHoldings_FiltersNonPositivePositions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "100000")

	_, err := l.ExecuteBuy(ctx, acct, "NFLX", 5)
	require.NoError(t, err)
	_, err = l.ExecuteBuy(ctx, acct, "GOOG", 3)
	require.NoError(t, err)
	_, err = l.ExecuteSell(ctx, acct, "GOOG", 3)
	require.NoError(t, err)

	holdings, err := l.Holdings(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"NFLX": 5}, holdings)
}

func TestHistory_InsertionOrderUnfiltered(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "100000")

	_, err := l.ExecuteBuy(ctx, acct, "NFLX", 5)
	require.NoError(t, err)
	_, err = l.ExecuteBuy(ctx, acct, "GOOG", 2)
	require.NoError(t, err)
	_, err = l.ExecuteSell(ctx, acct, "NFLX", 5)
	require.NoError(t, err)

	history, err := l.History(ctx, acct)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int64{5, 2, -5}, []int64{history[0].Shares, history[1].Shares, history[2].Shares})
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt),
			"timestamps must be non-decreasing")
	}
}

func TestSnapshot_PricesHoldingsAndTotalsNetWorth(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteBuy(ctx, acct, "NFLX", 5) // 500
	require.NoError(t, err)
	_, err = l.ExecuteBuy(ctx, acct, "AAPL", 2) // 301
	require.NoError(t, err)

	snapshot, err := l.Snapshot(ctx, acct)
	require.NoError(t, err)

	require.Len(t, snapshot.Positions, 2)
	assert.Equal(t, "AAPL", snapshot.Positions[0].Symbol)
	assert.Equal(t, "NFLX", snapshot.Positions[1].Symbol)
	assert.True(t, snapshot.Positions[0].Value.Equal(money("301")))
	assert.True(t, snapshot.Positions[1].Value.Equal(money("500")))
	assert.True(t, snapshot.Cash.Equal(money("9199")), "cash %s", snapshot.Cash)
	assert.True(t, snapshot.NetWorth.Equal(money("10000")), "net worth %s", snapshot.NetWorth)
}

func TestSnapshot_DelistedSymbolDegradesRowOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	oracle := newTestOracle()
	l := New(store, oracle, nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteBuy(ctx, acct, "NFLX", 5)
	require.NoError(t, err)
	_, err = l.ExecuteBuy(ctx, acct, "GOOG", 1)
	require.NoError(t, err)

	// GOOG gets delisted after the buy
	delete(oracle.quotes, "GOOG")

	snapshot, err := l.Snapshot(ctx, acct)
	require.NoError(t, err, "a delisted row must not fail the snapshot")

	require.Len(t, snapshot.Positions, 2)
	goog := snapshot.Positions[0]
	assert.Equal(t, "GOOG", goog.Symbol)
	assert.True(t, goog.Degraded)
	assert.NotEmpty(t, goog.Reason)
	assert.Equal(t, int64(1), goog.Shares)

	// net worth = cash 9400 + NFLX 500, nothing for the degraded row
	assert.True(t, snapshot.NetWorth.Equal(money("9900")), "net worth %s", snapshot.NetWorth)
}

func TestReadsDoNotMutateState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteBuy(ctx, acct, "NFLX", 5)
	require.NoError(t, err)

	before, err := l.History(ctx, acct)
	require.NoError(t, err)
	cashBefore, err := l.Cash(ctx, acct)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = l.Holdings(ctx, acct)
		require.NoError(t, err)
		_, err = l.Snapshot(ctx, acct)
		require.NoError(t, err)
		_, err = l.History(ctx, acct)
		require.NoError(t, err)
	}

	after, err := l.History(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	cashAfter, err := l.Cash(ctx, acct)
	require.NoError(t, err)
	assert.True(t, cashBefore.Equal(cashAfter))
}

func TestFailedCommitLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(&failingStore{LedgerStore: store}, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	_, err := l.ExecuteBuy(ctx, acct, "NFLX", 5)

	var persistence *PersistenceError
	require.ErrorAs(t, err, &persistence)

	cash, err := store.CashBalance(ctx, acct)
	require.NoError(t, err)
	assert.True(t, cash.Equal(money("10000")), "cash must be untouched after a failed commit")

	entries, err := store.EntriesByAccount(ctx, acct)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// Cash never drifts from what the ledger implies: initial grant plus
// sell proceeds minus buy costs, recomputed purely from history.
func TestCashNeverDriftsFromLedger(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	trades := []struct {
		sell   bool
		symbol string
		shares int64
	}{
		{false, "NFLX", 10},
		{false, "AAPL", 3},
		{true, "NFLX", 4},
		{false, "GOOG", 7},
		{true, "AAPL", 3},
		{true, "GOOG", 2},
	}
	for _, tr := range trades {
		var err error
		if tr.sell {
			_, err = l.ExecuteSell(ctx, acct, tr.symbol, tr.shares)
		} else {
			_, err = l.ExecuteBuy(ctx, acct, tr.symbol, tr.shares)
		}
		require.NoError(t, err)

		history, err := l.History(ctx, acct)
		require.NoError(t, err)

		expected := money("10000")
		for _, e := range history {
			expected = expected.Sub(e.Price.Mul(decimal.NewFromInt(e.Shares)))
		}
		cash, err := l.Cash(ctx, acct)
		require.NoError(t, err)
		assert.True(t, cash.Equal(expected), "cash %s, ledger implies %s", cash, expected)
	}
}

func TestTradeEventPublishedAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	publisher := &recordingPublisher{}
	l := New(store, newTestOracle(), publisher, zerolog.Nop())
	acct := newTestAccount(t, store, "10000")

	entry, err := l.ExecuteBuy(ctx, acct, "NFLX", 5)
	require.NoError(t, err)

	require.Len(t, publisher.events, 1)
	evt := publisher.events[0]
	assert.Contains(t, fmt.Sprintf("%+v", evt), entry.ID)
}

func TestConcurrentTradesAcrossAccounts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	l := New(store, newTestOracle(), nil, zerolog.Nop())

	const accountsN = 4
	const buysPerAccount = 25

	ids := make([]string, accountsN)
	for i := range ids {
		ids[i] = fmt.Sprintf("acct-%d", i)
		require.NoError(t, store.CreateAccount(ctx, models.Account{
			ID: ids[i], Username: ids[i], Cash: money("10000"),
		}))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(acct string) {
			defer wg.Done()
			for i := 0; i < buysPerAccount; i++ {
				if _, err := l.ExecuteBuy(ctx, acct, "NFLX", 1); err != nil {
					t.Error(err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		cash, err := l.Cash(ctx, id)
		require.NoError(t, err)
		assert.True(t, cash.Equal(money("7500")), "account %s cash %s", id, cash)

		holdings, err := l.Holdings(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(buysPerAccount), holdings["NFLX"])
	}
}
