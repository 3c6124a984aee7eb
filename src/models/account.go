package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeBank       AccountType = "bank"
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeCash       AccountType = "cash"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeStripe     AccountType = "stripe"
	AccountTypePayPal     AccountType = "paypal"
)

// Account is a ledger the user sees on the dashboard. Synced accounts carry the
// provider's account id in ExternalAccountID.
type Account struct {
	ID                string          `json:"id"`
	UserID            string          `json:"-"`
	Name              string          `json:"name"`
	Type              AccountType     `json:"type"`
	Institution       string          `json:"institution,omitempty"`
	ExternalAccountID string          `json:"external_account_id,omitempty"`
	Balance           decimal.Decimal `json:"balance"`
	Currency          string          `json:"currency"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
