package interfaces

import (
	"context"
	"errors"

	"github.com/papertrade/stock-ledger/internal/models"
)

var (
	// ErrSymbolNotFound is returned by Lookup when the oracle does not
	// know the requested ticker symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrOracleUnavailable is returned on transient oracle failures
	// (timeouts, transport errors, open circuit). Callers may retry.
	ErrOracleUnavailable = errors.New("price oracle unavailable")
)

// PriceOracle resolves ticker symbols to current quotes. Symbol matching
// is case-insensitive; quoted prices are positive.
type PriceOracle interface {
	Lookup(ctx context.Context, symbol string) (models.Quote, error)
}
