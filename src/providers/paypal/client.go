package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/providers"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	sandboxAPIURL     = "https://api-m.sandbox.paypal.com"
	liveAPIURL        = "https://api-m.paypal.com"
	sandboxWebURL     = "https://www.sandbox.paypal.com"
	liveWebURL        = "https://www.paypal.com"
	reportingPageSize = 500
)

type Config struct {
	ClientID      string
	ClientSecret  string
	Env           string
	APIBaseURL    string // overrides Env, used by tests
	WebBaseURL    string
	RedirectURL   string
	Timeout       time.Duration
	RatePerSecond int
}

// Client calls the PayPal REST API with a user's access token.
type Client struct {
	baseURL string
	timeout time.Duration
	limiter *rate.Limiter
	oauth   *oauth2.Config
}

func NewClient(cfg Config) *Client {
	live := strings.EqualFold(cfg.Env, "live") || strings.EqualFold(cfg.Env, "production")
	apiURL, webURL := cfg.APIBaseURL, cfg.WebBaseURL
	if apiURL == "" {
		apiURL = sandboxAPIURL
		if live {
			apiURL = liveAPIURL
		}
	}
	if webURL == "" {
		webURL = sandboxWebURL
		if live {
			webURL = liveWebURL
		}
	}
	apiURL = strings.TrimRight(apiURL, "/")

	return &Client{
		baseURL: apiURL,
		timeout: cfg.Timeout,
		limiter: providers.NewLimiter(cfg.RatePerSecond),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "https://uri.paypal.com/services/reporting/search/read"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   strings.TrimRight(webURL, "/") + "/signin/authorize",
				TokenURL:  apiURL + "/v1/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
}

// OAuthConfig is the Log in with PayPal configuration.
func (c *Client) OAuthConfig() *oauth2.Config { return c.oauth }

// PayPal sends either a REST error ({name, message}) or an OAuth error ({error, error_description}).
type apiErrorBody struct {
	Name             string `json:"name"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

var errorCodeKinds = map[string]providers.ErrorKind{
	"AUTHENTICATION_FAILURE": providers.KindUnauthorized,
	"invalid_token":          providers.KindUnauthorized,
	"RATE_LIMIT_REACHED":     providers.KindTransient,
	"INTERNAL_SERVICE_ERROR": providers.KindTransient,
}

func decodeError(_ int, body []byte) (string, error) {
	var e apiErrorBody
	if err := json.Unmarshal(body, &e); err != nil {
		return "", nil
	}
	switch {
	case e.Name != "":
		return e.Name, errors.New(e.Message)
	case e.Error != "":
		return e.Error, errors.New(e.ErrorDescription)
	}
	return "", nil
}

func (c *Client) api(accessToken string) *providers.JSONClient {
	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   http.DefaultTransport,
		},
	}
	return &providers.JSONClient{
		Provider:    models.ProviderPayPal,
		HTTP:        httpClient,
		Limiter:     c.limiter,
		Timeout:     c.timeout,
		DecodeError: decodeError,
		CodeKinds:   errorCodeKinds,
	}
}

type Money struct {
	CurrencyCode string          `json:"currency_code"`
	Value        decimal.Decimal `json:"value"`
}

type TransactionInfo struct {
	TransactionID             string `json:"transaction_id"`
	TransactionEventCode      string `json:"transaction_event_code"`
	TransactionInitiationDate string `json:"transaction_initiation_date"`
	TransactionAmount         Money  `json:"transaction_amount"`
	TransactionStatus         string `json:"transaction_status"`
	TransactionSubject        string `json:"transaction_subject"`
	TransactionNote           string `json:"transaction_note"`
}

type TransactionDetail struct {
	TransactionInfo TransactionInfo `json:"transaction_info"`
}

type TransactionSearch struct {
	TransactionDetails []TransactionDetail `json:"transaction_details"`
	Page               int                 `json:"page"`
	TotalPages         int                 `json:"total_pages"`
}

type BalanceDetail struct {
	Currency         string `json:"currency"`
	Primary          bool   `json:"primary"`
	TotalBalance     Money  `json:"total_balance"`
	AvailableBalance Money  `json:"available_balance"`
}

type Balances struct {
	Balances []BalanceDetail `json:"balances"`
}

type UserInfo struct {
	UserID  string `json:"user_id"`
	PayerID string `json:"payer_id"`
	Name    string `json:"name"`
}

// SearchTransactions returns one page of the reporting API's transaction search.
func (c *Client) SearchTransactions(ctx context.Context, accessToken string, from, to time.Time, page int) (*TransactionSearch, error) {
	q := url.Values{}
	q.Set("start_date", from.UTC().Format(time.RFC3339))
	q.Set("end_date", to.UTC().Format(time.RFC3339))
	q.Set("fields", "transaction_info")
	q.Set("page_size", strconv.Itoa(reportingPageSize))
	q.Set("page", strconv.Itoa(page))

	var out TransactionSearch
	if err := c.get(ctx, accessToken, "/v1/reporting/transactions?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetBalances(ctx context.Context, accessToken string) (*Balances, error) {
	var out Balances
	if err := c.get(ctx, accessToken, "/v1/reporting/balances?currency_code=ALL", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserInfo identifies the PayPal account behind accessToken.
func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	var out UserInfo
	if err := c.get(ctx, accessToken, "/v1/identity/oauth2/userinfo?schema=paypalv1.1", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build paypal request: %w", err)
	}
	return c.api(accessToken).Do(ctx, req, out)
}
