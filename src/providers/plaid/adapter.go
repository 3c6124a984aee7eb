package plaid

import (
	"context"
	"time"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/providers"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 500
	maxPages        = 20
	defaultCurrency = "USD"
)

// Adapter fetches an item's transactions and balances.
type Adapter struct {
	client   *Client
	pageSize int
}

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client, pageSize: defaultPageSize}
}

func (a *Adapter) Provider() models.Provider { return models.ProviderPlaid }

func (a *Adapter) Fetch(ctx context.Context, req providers.FetchRequest) (*providers.FetchResult, error) {
	log := logger.FromContext(ctx)
	result := &providers.FetchResult{}
	start, end := req.Window.StartDate(), req.Window.EndDate()

	offset := 0
	for page := 0; page < maxPages; page++ {
		resp, err := a.client.GetTransactions(ctx, req.AccessToken, start, end, a.pageSize, offset)
		if err != nil {
			return nil, err
		}
		if page == 0 {
			result.Balances = balancesFrom(resp.Accounts, req.Accounts)
		}

		for _, tx := range resp.Transactions {
			if tx.Pending {
				// Plaid issues a new transaction id when a pending transaction posts.
				continue
			}
			account, ok := req.Accounts.Resolve(tx.AccountID)
			if !ok {
				result.Dropped++
				continue
			}
			date, err := time.Parse(models.DateLayout, tx.Date)
			if err != nil {
				log.Warn("Skipping Plaid transaction with unparseable date", "transactionID", tx.TransactionID, "date", tx.Date)
				continue
			}
			result.Candidates = append(result.Candidates, toCandidate(tx, account.ID, date))
		}

		offset += len(resp.Transactions)
		if len(resp.Transactions) == 0 || offset >= resp.TotalTransactions {
			return result, nil
		}
	}

	log.Warn("Plaid transaction pagination capped", "pages", maxPages, "fetched", offset)
	return result, nil
}

// toCandidate normalizes one Plaid transaction. Plaid reports money leaving the
// account as a positive amount.
func toCandidate(tx Transaction, accountID string, date time.Time) models.Candidate {
	txType := models.TransactionTypeIncome
	if tx.Amount.IsPositive() {
		txType = models.TransactionTypeExpense
	}

	category := ""
	if len(tx.Category) > 0 && tx.Category[0] != "" {
		category = tx.Category[0]
	} else if tx.PersonalFinanceCategory != nil {
		category = tx.PersonalFinanceCategory.Primary
	}

	description := tx.Name
	if description == "" {
		description = tx.MerchantName
	}

	return models.Candidate{
		ExternalID:  tx.TransactionID,
		AccountID:   accountID,
		Type:        txType,
		Amount:      tx.Amount.Abs(),
		Currency:    currencyOf(tx.IsoCurrencyCode, tx.UnofficialCurrencyCode, defaultCurrency),
		Category:    category,
		Description: description,
		Date:        date,
	}
}

func balancesFrom(accounts []Account, idx *providers.AccountIndex) []models.BalanceReading {
	var readings []models.BalanceReading
	for _, pa := range accounts {
		account, ok := idx.Resolve(pa.AccountID)
		if !ok || !pa.Balances.Current.Valid {
			continue
		}
		readings = append(readings, models.BalanceReading{
			AccountID: account.ID,
			Balance:   pa.Balances.Current.Decimal,
			Currency:  currencyOf(pa.Balances.IsoCurrencyCode, pa.Balances.UnofficialCurrencyCode, account.Currency),
		})
	}
	return readings
}

func currencyOf(iso, unofficial, fallback string) string {
	switch {
	case iso != "":
		return iso
	case unofficial != "":
		return unofficial
	default:
		return fallback
	}
}

// AccountType maps a Plaid account type to the dashboard account type.
func AccountType(plaidType string) models.AccountType {
	switch plaidType {
	case "credit":
		return models.AccountTypeCreditCard
	case "investment", "brokerage":
		return models.AccountTypeInvestment
	default:
		return models.AccountTypeBank
	}
}

// OpeningBalance is the balance stored when an account is first connected.
func OpeningBalance(b Balances) decimal.Decimal {
	if b.Current.Valid {
		return b.Current.Decimal
	}
	return decimal.Zero
}

// AccountCurrency is the account currency, USD when Plaid reports none.
func AccountCurrency(b Balances) string {
	return currencyOf(b.IsoCurrencyCode, b.UnofficialCurrencyCode, defaultCurrency)
}
