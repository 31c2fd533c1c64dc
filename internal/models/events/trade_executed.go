package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeExecuted is published after a trade commits. CashAfter is the
// account balance once the trade settled.
type TradeExecuted struct {
	EntryID    string          `json:"entry_id"`
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Shares     int64           `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	CashAfter  decimal.Decimal `json:"cash_after"`
	OccurredAt time.Time       `json:"occurred_at"`
}
