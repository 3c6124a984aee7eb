package processors

import (
	"context"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/security/validation"
)

// TransactionProcessor cleans adapter output before reconciliation: labels are
// sanitized, the category is resolved and candidates that cannot be stored
// idempotently are rejected.
type TransactionProcessor struct {
	categories *CategoryMap
}

func NewTransactionProcessor(categories *CategoryMap) *TransactionProcessor {
	if categories == nil {
		categories = DefaultCategoryMap()
	}
	return &TransactionProcessor{categories: categories}
}

// Process returns the candidates that passed validation and how many were rejected.
func (p *TransactionProcessor) Process(ctx context.Context, provider models.Provider, candidates []models.Candidate) ([]models.Candidate, int) {
	log := logger.FromContext(ctx)
	accepted := make([]models.Candidate, 0, len(candidates))
	rejected := 0

	for _, c := range candidates {
		if err := validation.ValidateExternalID(c.ExternalID, "external transaction id"); err != nil {
			log.Warn("Rejecting candidate without a usable external id", "provider", provider, "error", err)
			rejected++
			continue
		}
		if c.AccountID == "" || c.Date.IsZero() {
			log.Warn("Rejecting incomplete candidate", "provider", provider, "externalID", c.ExternalID)
			rejected++
			continue
		}
		if c.Type != models.TransactionTypeIncome && c.Type != models.TransactionTypeExpense {
			log.Warn("Rejecting candidate with unknown type", "provider", provider, "externalID", c.ExternalID, "type", c.Type)
			rejected++
			continue
		}

		c.Amount = c.Amount.Abs()
		if err := validation.ValidateAmount(c.Amount, "amount"); err != nil {
			log.Warn("Rejecting candidate amount", "provider", provider, "externalID", c.ExternalID, "error", err)
			rejected++
			continue
		}

		currency, err := validation.ValidateCurrencyCode(c.Currency)
		if err != nil {
			log.Warn("Rejecting candidate currency", "provider", provider, "externalID", c.ExternalID, "error", err)
			rejected++
			continue
		}
		c.Currency = currency

		c.Category = p.categories.Resolve(provider, validation.SanitizeLabel(c.Category, validation.MaxCategoryLength))
		c.Description = validation.SanitizeLabel(c.Description, validation.MaxDescriptionLength)
		accepted = append(accepted, c)
	}
	return accepted, rejected
}
