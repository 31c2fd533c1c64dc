package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeEntry is a single immutable ledger record for an account.
// Shares is signed: positive for a buy, negative for a sell. Entries are
// never updated or deleted; corrections are made by appending offsetting
// entries.
type TradeEntry struct {
	ID        string          `json:"id" db:"id"`
	AccountID string          `json:"account_id" db:"account_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Shares    int64           `json:"shares" db:"shares"`
	Price     decimal.Decimal `json:"price" db:"price"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
