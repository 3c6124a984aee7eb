// Package providers defines the fetch adapters used by the sync service. An
// adapter reads one provider's transactions and balances and returns them in
// provider-independent form. Adapters never write to the store.
package providers

import (
	"context"
	"fmt"

	"github.com/financeflow/backend/src/models"
)

// FetchRequest carries everything an adapter needs for one credential.
type FetchRequest struct {
	AccessToken string
	Metadata    map[string]string
	Window      Window
	Accounts    *AccountIndex
}

// FetchResult holds normalized candidates and balance readings. Dropped counts
// provider records whose account has no internal counterpart.
type FetchResult struct {
	Candidates []models.Candidate
	Balances   []models.BalanceReading
	Dropped    int
}

type Adapter interface {
	Provider() models.Provider
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

// Registry maps providers to their adapters.
type Registry struct {
	adapters map[models.Provider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Get returns the adapter for p.
func (r *Registry) Get(p models.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for %q", models.ErrUnknownProvider, p)
	}
	return a, nil
}
