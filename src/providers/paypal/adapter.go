package paypal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/providers"
)

const (
	maxPages         = 10
	statusSuccess    = "S"
	incomeCategory   = "Payment"
	expenseCategory  = "Transfer"
	descriptionLabel = "PayPal Transaction"
)

// Adapter fetches completed PayPal transactions and the primary balance.
type Adapter struct {
	client *Client
}

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Provider() models.Provider { return models.ProviderPayPal }

func (a *Adapter) Fetch(ctx context.Context, req providers.FetchRequest) (*providers.FetchResult, error) {
	log := logger.FromContext(ctx)
	result := &providers.FetchResult{}
	account, mapped := req.Accounts.Resolve(req.Metadata[models.MetadataAccountID])

	for page := 1; page <= maxPages; page++ {
		search, err := a.client.SearchTransactions(ctx, req.AccessToken, req.Window.Start, req.Window.End, page)
		if err != nil {
			return nil, err
		}
		for _, d := range search.TransactionDetails {
			info := d.TransactionInfo
			if info.TransactionStatus != statusSuccess {
				continue
			}
			if !mapped {
				result.Dropped++
				continue
			}
			date, err := time.Parse(time.RFC3339, info.TransactionInitiationDate)
			if err != nil {
				// PayPal sometimes omits the colon in the zone offset.
				date, err = time.Parse("2006-01-02T15:04:05-0700", info.TransactionInitiationDate)
			}
			if err != nil {
				log.Warn("Skipping PayPal transaction with unparseable date", "transactionID", info.TransactionID, "date", info.TransactionInitiationDate)
				continue
			}
			result.Candidates = append(result.Candidates, toCandidate(info, account.ID, date))
		}
		if page >= search.TotalPages {
			break
		}
		if page == maxPages {
			log.Warn("PayPal transaction pagination capped", "pages", maxPages, "totalPages", search.TotalPages)
		}
	}

	if !mapped {
		return result, nil
	}

	balances, err := a.client.GetBalances(ctx, req.AccessToken)
	if err != nil {
		return nil, err
	}
	if reading, ok := primaryBalance(balances, account); ok {
		result.Balances = []models.BalanceReading{reading}
	}
	return result, nil
}

// toCandidate normalizes one PayPal transaction. PayPal signs amounts from the
// account holder's side: negative is money out.
func toCandidate(info TransactionInfo, accountID string, date time.Time) models.Candidate {
	amount := info.TransactionAmount.Value
	txType, category := models.TransactionTypeIncome, incomeCategory
	if amount.IsNegative() {
		txType, category = models.TransactionTypeExpense, expenseCategory
	}

	description := info.TransactionSubject
	if description == "" {
		description = info.TransactionNote
	}
	if description == "" {
		description = fmt.Sprintf("%s %s", descriptionLabel, info.TransactionID)
	}

	return models.Candidate{
		ExternalID:  info.TransactionID,
		AccountID:   accountID,
		Type:        txType,
		Amount:      amount.Abs(),
		Currency:    strings.ToUpper(info.TransactionAmount.CurrencyCode),
		Category:    category,
		Description: description,
		Date:        date.UTC(),
	}
}

// primaryBalance reads the available balance of the primary currency, or of the
// first listed currency when none is marked primary.
func primaryBalance(b *Balances, account models.Account) (models.BalanceReading, bool) {
	if len(b.Balances) == 0 {
		return models.BalanceReading{}, false
	}
	chosen := b.Balances[0]
	for _, bal := range b.Balances {
		if bal.Primary {
			chosen = bal
			break
		}
	}

	amount := chosen.AvailableBalance
	if amount.CurrencyCode == "" {
		amount = chosen.TotalBalance
	}
	currency := firstNonEmpty(amount.CurrencyCode, chosen.Currency, account.Currency)
	return models.BalanceReading{AccountID: account.ID, Balance: amount.Value, Currency: strings.ToUpper(currency)}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
