package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// DateLayout is the storage format of Transaction.Date.
const DateLayout = "2006-01-02"

// Transaction is a stored row. Amount is never negative; direction lives in Type.
type Transaction struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"-"`
	AccountID             string          `json:"account_id"`
	Provider              Provider        `json:"provider,omitempty"`
	Type                  TransactionType `json:"type"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Category              string          `json:"category"`
	Description           string          `json:"description"`
	Date                  string          `json:"date"`
	ExternalTransactionID string          `json:"external_transaction_id,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	AccountID string
	Limit     int
	Offset    int
}
