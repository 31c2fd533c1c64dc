package models

import "github.com/shopspring/decimal"

// Quote is a price oracle result for one ticker symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}
