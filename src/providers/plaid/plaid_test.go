package plaid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/providers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{ClientID: "cid", Secret: "sec", BaseURL: srv.URL, Timeout: 5 * time.Second})
}

func testRequest() providers.FetchRequest {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	return providers.FetchRequest{
		AccessToken: "access-sandbox-1",
		Window:      providers.TrailingWindow(now, 30),
		Accounts: providers.NewAccountIndex([]models.Account{
			{ID: "acc-checking", ExternalAccountID: "plaid-checking", Currency: "USD"},
		}),
	}
}

const transactionsBody = `{
  "accounts": [
    {"account_id": "plaid-checking", "balances": {"current": 85.5, "iso_currency_code": "USD"}},
    {"account_id": "plaid-unknown", "balances": {"current": 10, "iso_currency_code": "USD"}}
  ],
  "transactions": [
    {"transaction_id": "t-out", "account_id": "plaid-checking", "amount": 12.34, "iso_currency_code": "USD",
     "category": ["Food and Drink", "Restaurants"], "name": "Cafe", "date": "2026-10-10", "pending": false},
    {"transaction_id": "t-in", "account_id": "plaid-checking", "amount": -500, "iso_currency_code": "USD",
     "category": [], "personal_finance_category": {"primary": "INCOME"}, "name": "", "merchant_name": "Employer",
     "date": "2026-10-01", "pending": false},
    {"transaction_id": "t-pending", "account_id": "plaid-checking", "amount": 3, "date": "2026-10-17", "pending": true},
    {"transaction_id": "t-unmapped", "account_id": "plaid-unknown", "amount": 7, "date": "2026-10-11", "pending": false}
  ],
  "total_transactions": 4
}`

func TestAdapterFetch_NormalizesSigns(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/get", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cid", body["client_id"])
		assert.Equal(t, "access-sandbox-1", body["access_token"])
		assert.Equal(t, "2026-09-18", body["start_date"])
		assert.Equal(t, "2026-10-18", body["end_date"])
		w.Write([]byte(transactionsBody))
	})

	res, err := NewAdapter(client).Fetch(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, res.Candidates, 2)
	out := res.Candidates[0]
	assert.Equal(t, "t-out", out.ExternalID)
	assert.Equal(t, "acc-checking", out.AccountID)
	assert.Equal(t, models.TransactionTypeExpense, out.Type)
	assert.True(t, decimal.RequireFromString("12.34").Equal(out.Amount))
	assert.Equal(t, "Food and Drink", out.Category)
	assert.Equal(t, "Cafe", out.Description)

	in := res.Candidates[1]
	assert.Equal(t, models.TransactionTypeIncome, in.Type)
	assert.True(t, decimal.NewFromInt(500).Equal(in.Amount))
	assert.Equal(t, "INCOME", in.Category)
	assert.Equal(t, "Employer", in.Description)

	assert.Equal(t, 1, res.Dropped)

	require.Len(t, res.Balances, 1)
	assert.Equal(t, "acc-checking", res.Balances[0].AccountID)
	assert.True(t, decimal.RequireFromString("85.5").Equal(res.Balances[0].Balance))
}

func TestAdapterFetch_Paginates(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Options struct {
				Count  int `json:"count"`
				Offset int `json:"offset"`
			} `json:"options"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls++
		id := "t-1"
		if body.Options.Offset == 1 {
			id = "t-2"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"accounts": []any{},
			"transactions": []any{map[string]any{
				"transaction_id": id, "account_id": "plaid-checking", "amount": 1, "date": "2026-10-10",
			}},
			"total_transactions": 2,
		})
	})

	adapter := NewAdapter(client)
	adapter.pageSize = 1
	res, err := adapter.Fetch(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "t-2", res.Candidates[1].ExternalID)
}

func TestAdapterFetch_LoginRequiredIsUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_type":"ITEM_ERROR","error_code":"ITEM_LOGIN_REQUIRED","error_message":"login required"}`))
	})

	_, err := NewAdapter(client).Fetch(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrUnauthorized)
	assert.Equal(t, models.ReasonReauthRequired, providers.ReasonFor(err))
}

func TestAdapterFetch_ServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := NewAdapter(client).Fetch(context.Background(), testRequest())
	assert.ErrorIs(t, err, providers.ErrTransient)
}

func TestExchangeAndAccounts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/item/public_token/exchange":
			w.Write([]byte(`{"access_token":"access-1","item_id":"item-1"}`))
		case "/accounts/get":
			w.Write([]byte(`{"item":{"item_id":"item-1","institution_id":"ins_3"},"accounts":[
				{"account_id":"a1","name":"Plaid Checking","type":"depository","balances":{"current":110,"iso_currency_code":"USD"}},
				{"account_id":"a2","name":"Plaid Credit Card","type":"credit","balances":{"current":null}}]}`))
		case "/link/token/create":
			w.Write([]byte(`{"link_token":"link-sandbox-1","expiration":"2026-10-18T16:00:00Z"}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	link, err := client.CreateLinkToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "link-sandbox-1", link.LinkToken)

	ex, err := client.ExchangePublicToken(ctx, "public-sandbox-1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", ex.AccessToken)

	accs, err := client.GetAccounts(ctx, ex.AccessToken)
	require.NoError(t, err)
	require.Len(t, accs.Accounts, 2)
	assert.Equal(t, "ins_3", accs.Item.InstitutionID)
	assert.Equal(t, models.AccountTypeBank, AccountType(accs.Accounts[0].Type))
	assert.Equal(t, models.AccountTypeCreditCard, AccountType(accs.Accounts[1].Type))
	assert.True(t, decimal.NewFromInt(110).Equal(OpeningBalance(accs.Accounts[0].Balances)))
	assert.True(t, OpeningBalance(accs.Accounts[1].Balances).IsZero())
	assert.Equal(t, "USD", AccountCurrency(accs.Accounts[1].Balances))
}

func TestBaseURLForEnv(t *testing.T) {
	assert.Equal(t, productionURL, BaseURLForEnv("production"))
	assert.Equal(t, developmentURL, BaseURLForEnv("Development"))
	assert.Equal(t, sandboxURL, BaseURLForEnv(""))
}
