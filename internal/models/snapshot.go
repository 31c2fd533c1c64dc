package models

import "github.com/shopspring/decimal"

// Position is one priced holding inside a portfolio snapshot.
// When the oracle cannot resolve a previously traded symbol the row is
// marked Degraded and carries the reason; its value is excluded from
// the snapshot's net worth.
type Position struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name,omitempty"`
	Shares    int64           `json:"shares"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Value     decimal.Decimal `json:"value"`
	Degraded  bool            `json:"degraded,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// PortfolioSnapshot is a priced view of an account, recomputed per
// request and never persisted.
type PortfolioSnapshot struct {
	Positions []Position      `json:"positions"`
	Cash      decimal.Decimal `json:"cash"`
	NetWorth  decimal.Decimal `json:"net_worth"`
}
