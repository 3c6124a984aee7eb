package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is the provider-independent form of one fetched transaction.
// Adapters fill it from the provider payload; the transaction processor
// cleans it up before reconciliation.
type Candidate struct {
	ExternalID  string
	AccountID   string // internal account id, resolved by the adapter
	Type        TransactionType
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	Date        time.Time
}

// BalanceReading is the provider-reported balance of one internal account.
type BalanceReading struct {
	AccountID string
	Balance   decimal.Decimal
	Currency  string
}
