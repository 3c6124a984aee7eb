package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/financeflow/backend/src/models"
)

var (
	ErrUnauthorized = errors.New("provider authorization revoked or expired")
	ErrTransient    = errors.New("provider temporarily unavailable")
	ErrRejected     = errors.New("provider rejected the request")
)

type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindUnauthorized
	KindRejected
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindRejected:
		return ErrRejected
	default:
		return ErrTransient
	}
}

// ProviderError is returned by adapters and provider clients.
type ProviderError struct {
	Provider   models.Provider
	Kind       ErrorKind
	StatusCode int
	Code       string // provider error code, when the provider sends one
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind.sentinel())
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches the kind sentinels so callers can use errors.Is(err, ErrUnauthorized).
func (e *ProviderError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindForStatus classifies an HTTP status returned by a provider.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return KindTransient
	default:
		return KindRejected
	}
}

// StatusError builds the error for a non-2xx response.
func StatusError(p models.Provider, status int, code string, detail error) *ProviderError {
	return &ProviderError{Provider: p, Kind: KindForStatus(status), StatusCode: status, Code: code, Err: detail}
}

// TransportError wraps a failure to reach the provider. Timeouts, cancellations
// and network errors are all transient.
func TransportError(p models.Provider, err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return &ProviderError{Provider: p, Kind: KindTransient, Err: err}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ReasonFor maps a fetch error to the reason reported for the credential.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return models.ReasonReauthRequired
	case errors.Is(err, ErrRejected):
		return models.ReasonProviderRejected
	default:
		return models.ReasonProviderUnavailable
	}
}
