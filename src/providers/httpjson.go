package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/financeflow/backend/src/models"
	"golang.org/x/time/rate"
)

const maxErrorBody = 4 << 10

// ErrorDecoder extracts a provider error code and message from an error body.
type ErrorDecoder func(status int, body []byte) (code string, detail error)

// JSONClient is the HTTP plumbing shared by the provider clients. Each call
// waits on the rate limiter, runs under its own Timeout and has its errors
// classified.
type JSONClient struct {
	Provider    models.Provider
	HTTP        *http.Client
	Limiter     *rate.Limiter
	Timeout     time.Duration // per call, limiter wait included
	DecodeError ErrorDecoder
	CodeKinds   map[string]ErrorKind // overrides the status-based kind
}

// NewHTTPClient returns a client with the given timeout, the way every outbound
// client in this service is configured.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewLimiter returns a limiter allowing perSecond calls with a matching burst.
// A non-positive rate disables limiting.
func NewLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

// Do sends req and decodes a 2xx JSON body into out. Non-2xx responses and
// transport failures come back as *ProviderError.
func (c *JSONClient) Do(ctx context.Context, req *http.Request, out any) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return TransportError(c.Provider, err)
		}
	}
	req = req.WithContext(ctx)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return TransportError(c.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var code string
		var detail error
		if c.DecodeError != nil {
			code, detail = c.DecodeError(resp.StatusCode, body)
		}
		if detail == nil {
			detail = fmt.Errorf("unexpected response: %s", string(body))
		}
		perr := StatusError(c.Provider, resp.StatusCode, code, detail)
		if kind, ok := c.CodeKinds[code]; ok && code != "" {
			perr.Kind = kind
		}
		return perr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// A truncated body is as good as no answer; the next sync will retry.
		return &ProviderError{Provider: c.Provider, Kind: KindTransient, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
