package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/providers"
	"github.com/shopspring/decimal"
)

const (
	maxChargePages  = 10
	chargeCategory  = "Payment"
	statusSucceeded = "succeeded"
)

// Currencies Stripe expresses in whole units rather than cents.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// Adapter fetches succeeded charges and the available balance of a connected account.
type Adapter struct {
	client *Client
}

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Provider() models.Provider { return models.ProviderStripe }

func (a *Adapter) Fetch(ctx context.Context, req providers.FetchRequest) (*providers.FetchResult, error) {
	result := &providers.FetchResult{}
	account, mapped := req.Accounts.Resolve(req.Metadata[models.MetadataAccountID])

	startingAfter := ""
	for page := 0; ; page++ {
		if page == maxChargePages {
			logger.FromContext(ctx).Warn("Stripe charge pagination capped", "pages", maxChargePages)
			break
		}
		list, err := a.client.ListCharges(ctx, req.AccessToken, req.Window.Start, req.Window.End, startingAfter)
		if err != nil {
			return nil, err
		}
		for _, ch := range list.Data {
			if ch.Status != statusSucceeded {
				continue
			}
			if !mapped {
				result.Dropped++
				continue
			}
			result.Candidates = append(result.Candidates, toCandidate(ch, account.ID))
		}
		if !list.HasMore || len(list.Data) == 0 {
			break
		}
		startingAfter = list.Data[len(list.Data)-1].ID
	}

	if !mapped {
		return result, nil
	}

	balance, err := a.client.GetBalance(ctx, req.AccessToken)
	if err != nil {
		return nil, err
	}
	result.Balances = []models.BalanceReading{availableBalance(balance, account)}
	return result, nil
}

func toCandidate(ch Charge, accountID string) models.Candidate {
	currency := strings.ToUpper(ch.Currency)
	description := ch.Description
	if description == "" {
		description = fmt.Sprintf("Stripe Charge %s", ch.ID)
	}
	return models.Candidate{
		ExternalID:  ch.ID,
		AccountID:   accountID,
		Type:        models.TransactionTypeIncome,
		Amount:      FromMinorUnits(ch.Amount, currency).Abs(),
		Currency:    currency,
		Category:    chargeCategory,
		Description: description,
		Date:        time.Unix(ch.Created, 0).UTC(),
	}
}

// availableBalance picks the available amount in the account currency, falling
// back to the first entry and then to zero.
func availableBalance(b *Balance, account models.Account) models.BalanceReading {
	reading := models.BalanceReading{AccountID: account.ID, Balance: decimal.Zero, Currency: account.Currency}
	if len(b.Available) == 0 {
		return reading
	}
	chosen := b.Available[0]
	for _, amt := range b.Available {
		if strings.EqualFold(amt.Currency, account.Currency) {
			chosen = amt
			break
		}
	}
	currency := strings.ToUpper(chosen.Currency)
	reading.Balance = FromMinorUnits(chosen.Amount, currency)
	reading.Currency = currency
	return reading
}

// FromMinorUnits converts a Stripe integer amount to a decimal in major units.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}
