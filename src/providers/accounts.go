package providers

import "github.com/financeflow/backend/src/models"

// AccountIndex resolves provider account ids to the user's internal accounts.
type AccountIndex struct {
	byExternal map[string]models.Account
}

// NewAccountIndex indexes accounts by external account id. Accounts without one
// (manual accounts) are not addressable by providers.
func NewAccountIndex(accounts []models.Account) *AccountIndex {
	idx := &AccountIndex{byExternal: make(map[string]models.Account, len(accounts))}
	for _, a := range accounts {
		if a.ExternalAccountID != "" {
			idx.byExternal[a.ExternalAccountID] = a
		}
	}
	return idx
}

// Resolve returns the internal account for a provider account id.
func (idx *AccountIndex) Resolve(externalID string) (models.Account, bool) {
	if idx == nil || externalID == "" {
		return models.Account{}, false
	}
	a, ok := idx.byExternal[externalID]
	return a, ok
}

func (idx *AccountIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.byExternal)
}
