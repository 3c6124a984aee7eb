package stripe

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
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBaseURL     = "https://api.stripe.com"
	defaultConnectBaseURL = "https://connect.stripe.com"
	chargesPageLimit      = 100
)

type Config struct {
	APIBaseURL     string
	ConnectBaseURL string
	ClientID       string
	SecretKey      string
	RedirectURL    string
	Timeout        time.Duration
	RatePerSecond  int
}

// Client calls the Stripe API on behalf of a connected account. Each call is
// authorized with that account's OAuth access token.
type Client struct {
	baseURL string
	timeout time.Duration
	limiter *rate.Limiter
	oauth   *oauth2.Config
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	connectURL := cfg.ConnectBaseURL
	if connectURL == "" {
		connectURL = defaultConnectBaseURL
	}
	connectURL = strings.TrimRight(connectURL, "/")

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: cfg.Timeout,
		limiter: providers.NewLimiter(cfg.RatePerSecond),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.SecretKey,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read_only"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   connectURL + "/oauth/authorize",
				TokenURL:  connectURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// OAuthConfig is the Stripe Connect OAuth configuration.
func (c *Client) OAuthConfig() *oauth2.Config { return c.oauth }

type apiErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(_ int, body []byte) (string, error) {
	var e apiErrorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return "", nil
	}
	code := e.Error.Code
	if code == "" {
		code = e.Error.Type
	}
	return code, errors.New(e.Error.Message)
}

// api returns a JSON client that sends accessToken as a bearer token.
func (c *Client) api(accessToken string) *providers.JSONClient {
	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   http.DefaultTransport,
		},
	}
	return &providers.JSONClient{
		Provider:    models.ProviderStripe,
		HTTP:        httpClient,
		Limiter:     c.limiter,
		Timeout:     c.timeout,
		DecodeError: decodeError,
	}
}

type Charge struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Created     int64  `json:"created"`
	Paid        bool   `json:"paid"`
}

type ChargeList struct {
	Data    []Charge `json:"data"`
	HasMore bool     `json:"has_more"`
}

type BalanceAmount struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Balance struct {
	Available []BalanceAmount `json:"available"`
	Pending   []BalanceAmount `json:"pending"`
}

// ListCharges returns one page of charges created in [from, to].
func (c *Client) ListCharges(ctx context.Context, accessToken string, from, to time.Time, startingAfter string) (*ChargeList, error) {
	q := url.Values{}
	q.Set("created[gte]", strconv.FormatInt(from.Unix(), 10))
	q.Set("created[lte]", strconv.FormatInt(to.Unix(), 10))
	q.Set("limit", strconv.Itoa(chargesPageLimit))
	if startingAfter != "" {
		q.Set("starting_after", startingAfter)
	}

	var out ChargeList
	if err := c.get(ctx, accessToken, "/v1/charges?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetBalance(ctx context.Context, accessToken string) (*Balance, error) {
	var out Balance
	if err := c.get(ctx, accessToken, "/v1/balance", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build stripe request: %w", err)
	}
	return c.api(accessToken).Do(ctx, req, out)
}
