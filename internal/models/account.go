package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account owns a cash balance and, transitively, every trade entry that
// references it. Cash is mutated only by the trade executor, atomically
// with the matching ledger append.
type Account struct {
	ID           string          `json:"id" db:"id"`
	Username     string          `json:"username" db:"username"`
	PasswordHash string          `json:"-" db:"password_hash"`
	Cash         decimal.Decimal `json:"cash" db:"cash"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
