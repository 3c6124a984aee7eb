package models

import "github.com/shopspring/decimal"

// CurrencyAmount is a total in a single currency.
type CurrencyAmount struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// CategoryTotal is the expense total of one category in one currency.
type CategoryTotal struct {
	Category string          `json:"category"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// MonthlyPoint is one month of the income/expense series.
type MonthlyPoint struct {
	Month    string          `json:"month"` // YYYY-MM
	Currency string          `json:"currency"`
	Income   decimal.Decimal `json:"income"`
	Expense  decimal.Decimal `json:"expense"`
}

// DashboardSummary feeds the dashboard and analytics pages.
type DashboardSummary struct {
	Balances          []CurrencyAmount `json:"balances"`
	Income30d         []CurrencyAmount `json:"income_30d"`
	Expense30d        []CurrencyAmount `json:"expense_30d"`
	ExpenseByCategory []CategoryTotal  `json:"expense_by_category"`
	Monthly           []MonthlyPoint   `json:"monthly"`
	AccountCount      int              `json:"account_count"`
	TransactionCount  int              `json:"transaction_count"`
	HasData           bool             `json:"has_data"`
}
