package models

import (
	"errors"
	"fmt"
	"strings"
)

// Provider identifies an external data source.
type Provider string

const (
	ProviderPlaid  Provider = "plaid"
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
)

// Kind groups providers by the role they play for the user.
type Kind string

const (
	KindAggregator Kind = "aggregator"
	KindProcessor  Kind = "processor"
)

var ErrUnknownProvider = errors.New("unknown provider")

// AllProviders lists every supported provider in a stable order.
var AllProviders = []Provider{ProviderPlaid, ProviderStripe, ProviderPayPal}

func (p Provider) Kind() Kind {
	if p == ProviderPlaid {
		return KindAggregator
	}
	return KindProcessor
}

func (p Provider) Valid() bool {
	switch p {
	case ProviderPlaid, ProviderStripe, ProviderPayPal:
		return true
	}
	return false
}

// IsProcessor reports whether p is a payment processor.
func (p Provider) IsProcessor() bool {
	return p.Valid() && p.Kind() == KindProcessor
}

// DisplayName is used for the account created when a processor is connected.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderPlaid:
		return "Plaid"
	case ProviderStripe:
		return "Stripe"
	case ProviderPayPal:
		return "PayPal"
	}
	return string(p)
}

// ParseProvider parses a single provider name.
func ParseProvider(raw string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
	}
	return p, nil
}

// ProviderFilter is the parsed form of the sync "provider" selector.
type ProviderFilter struct {
	Name      string
	Providers []Provider
}

// All reports whether the filter selects every provider.
func (f ProviderFilter) All() bool {
	return f.Name == "all"
}

// ParseProviderFilter accepts "", "all", a kind ("aggregator", "processor")
// or a single provider name.
func ParseProviderFilter(raw string) (ProviderFilter, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "", "all":
		return ProviderFilter{Name: "all", Providers: append([]Provider(nil), AllProviders...)}, nil
	case string(KindAggregator):
		return ProviderFilter{Name: name, Providers: []Provider{ProviderPlaid}}, nil
	case string(KindProcessor):
		return ProviderFilter{Name: name, Providers: []Provider{ProviderStripe, ProviderPayPal}}, nil
	}

	p, err := ParseProvider(name)
	if err != nil {
		return ProviderFilter{}, err
	}
	return ProviderFilter{Name: name, Providers: []Provider{p}}, nil
}
