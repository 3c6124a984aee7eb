package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/providers"
	"github.com/shopspring/decimal"
)

const (
	sandboxURL     = "https://sandbox.plaid.com"
	developmentURL = "https://development.plaid.com"
	productionURL  = "https://production.plaid.com"
)

// Plaid error codes whose meaning differs from the HTTP status they arrive with.
var errorCodeKinds = map[string]providers.ErrorKind{
	"ITEM_LOGIN_REQUIRED":        providers.KindUnauthorized,
	"INVALID_ACCESS_TOKEN":       providers.KindUnauthorized,
	"ACCESS_NOT_GRANTED":         providers.KindUnauthorized,
	"ITEM_NOT_FOUND":             providers.KindUnauthorized,
	"USER_PERMISSION_REVOKED":    providers.KindUnauthorized,
	"PRODUCT_NOT_READY":          providers.KindTransient,
	"INSTITUTION_DOWN":           providers.KindTransient,
	"INSTITUTION_NOT_RESPONDING": providers.KindTransient,
	"RATE_LIMIT_EXCEEDED":        providers.KindTransient,
}

type Config struct {
	ClientID      string
	Secret        string
	Env           string
	BaseURL       string // overrides Env, used by tests
	Timeout       time.Duration
	RatePerSecond int
}

// BaseURLForEnv maps PLAID_ENV to the API host. Unknown values use sandbox.
func BaseURLForEnv(env string) string {
	switch strings.ToLower(env) {
	case "production":
		return productionURL
	case "development":
		return developmentURL
	default:
		return sandboxURL
	}
}

// Client talks to the Plaid API. Authentication is the client id and secret
// in every request body.
type Client struct {
	clientID string
	secret   string
	baseURL  string
	api      *providers.JSONClient
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURLForEnv(cfg.Env)
	}
	return &Client{
		clientID: cfg.ClientID,
		secret:   cfg.Secret,
		baseURL:  strings.TrimRight(baseURL, "/"),
		api: &providers.JSONClient{
			Provider:    models.ProviderPlaid,
			HTTP:        providers.NewHTTPClient(cfg.Timeout),
			Limiter:     providers.NewLimiter(cfg.RatePerSecond),
			Timeout:     cfg.Timeout,
			DecodeError: decodeError,
			CodeKinds:   errorCodeKinds,
		},
	}
}

type apiError struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func decodeError(_ int, body []byte) (string, error) {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil || e.ErrorCode == "" {
		return "", nil
	}
	return e.ErrorCode, errors.New(e.ErrorMessage)
}

type Balances struct {
	Available              decimal.NullDecimal `json:"available"`
	Current                decimal.NullDecimal `json:"current"`
	IsoCurrencyCode        string              `json:"iso_currency_code"`
	UnofficialCurrencyCode string              `json:"unofficial_currency_code"`
}

type Account struct {
	AccountID    string   `json:"account_id"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Mask         string   `json:"mask"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
	Balances     Balances `json:"balances"`
}

type Item struct {
	ItemID        string `json:"item_id"`
	InstitutionID string `json:"institution_id"`
}

type PersonalFinanceCategory struct {
	Primary  string `json:"primary"`
	Detailed string `json:"detailed"`
}

type Transaction struct {
	TransactionID           string                   `json:"transaction_id"`
	AccountID               string                   `json:"account_id"`
	Amount                  decimal.Decimal          `json:"amount"`
	IsoCurrencyCode         string                   `json:"iso_currency_code"`
	UnofficialCurrencyCode  string                   `json:"unofficial_currency_code"`
	Category                []string                 `json:"category"`
	PersonalFinanceCategory *PersonalFinanceCategory `json:"personal_finance_category"`
	Name                    string                   `json:"name"`
	MerchantName            string                   `json:"merchant_name"`
	Date                    string                   `json:"date"`
	Pending                 bool                     `json:"pending"`
}

type LinkToken struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration"`
}

type ExchangeResult struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
	Item     Item      `json:"item"`
}

type TransactionsResponse struct {
	Accounts          []Account     `json:"accounts"`
	Transactions      []Transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
	Item              Item          `json:"item"`
}

// CreateLinkToken creates a Link token for the given user.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (*LinkToken, error) {
	body := map[string]any{
		"client_name":   "FinanceFlow",
		"user":          map[string]string{"client_user_id": userID},
		"products":      []string{"transactions"},
		"country_codes": []string{"US"},
		"language":      "en",
	}
	var out LinkToken
	if err := c.post(ctx, "/link/token/create", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExchangePublicToken trades the Link public token for a long-lived access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error) {
	var out ExchangeResult
	if err := c.post(ctx, "/item/public_token/exchange", map[string]any{"public_token": publicToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error) {
	var out AccountsResponse
	if err := c.post(ctx, "/accounts/get", map[string]any{"access_token": accessToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactions returns one page of transactions dated between start and end (YYYY-MM-DD).
func (c *Client) GetTransactions(ctx context.Context, accessToken, start, end string, count, offset int) (*TransactionsResponse, error) {
	body := map[string]any{
		"access_token": accessToken,
		"start_date":   start,
		"end_date":     end,
		"options":      map[string]int{"count": count, "offset": offset},
	}
	var out TransactionsResponse
	if err := c.post(ctx, "/transactions/get", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	body["client_id"] = c.clientID
	body["secret"] = c.secret
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode plaid request %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build plaid request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.api.Do(ctx, req, out)
}
