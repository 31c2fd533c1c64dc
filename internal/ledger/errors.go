package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// UnknownSymbolError reports a ticker symbol the price oracle could not
// resolve (or an empty symbol rejected before the lookup).
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	if e.Symbol == "" {
		return "missing symbol"
	}
	return fmt.Sprintf("unknown symbol %q", e.Symbol)
}

// InvalidQuantityError reports a non-positive share count.
type InvalidQuantityError struct {
	Shares int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid share quantity %d: must be a positive integer", e.Shares)
}

// InsufficientFundsError reports a buy whose cost exceeds the account's
// cash balance.
type InsufficientFundsError struct {
	Symbol    string
	Shares    int64
	Cost      decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: buying %d %s costs %s, only %s available",
		e.Shares, e.Symbol, e.Cost, e.Available)
}

// InsufficientSharesError reports a sell that exceeds the account's net
// holding of the symbol.
type InsufficientSharesError struct {
	Symbol    string
	Requested int64
	Held      int64
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares: selling %d %s, only %d held",
		e.Requested, e.Symbol, e.Held)
}

// OracleUnavailableError wraps a transient price oracle failure. The
// trade did not happen and the caller may retry.
type OracleUnavailableError struct {
	Symbol string
	Err    error
}

func (e *OracleUnavailableError) Error() string {
	return fmt.Sprintf("price lookup for %s failed: %v", e.Symbol, e.Err)
}

func (e *OracleUnavailableError) Unwrap() error { return e.Err }

// PersistenceError wraps a ledger store failure. The store guarantees no
// partial commit, so the operation is treated as not having happened.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
