package services

import (
	"context"
	"time"

	"github.com/financeflow/backend/src/model"
	"github.com/financeflow/backend/src/models"
	"github.com/shopspring/decimal"
)

type sqlSyncStore struct {
	db model.Querier
}

// NewSQLSyncStore backs the sync path with the relational store.
func NewSQLSyncStore(db model.Querier) SyncStore {
	return &sqlSyncStore{db: db}
}

func (s *sqlSyncStore) ListActiveCredentials(ctx context.Context, userID string, providers []models.Provider) ([]models.Credential, error) {
	return model.GetActiveIntegrations(ctx, s.db, userID, providers)
}

func (s *sqlSyncStore) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	return model.GetAccountsByUser(ctx, s.db, userID)
}

func (s *sqlSyncStore) TransactionExists(ctx context.Context, provider models.Provider, externalID string) (bool, error) {
	return model.TransactionExists(ctx, s.db, provider, externalID)
}

func (s *sqlSyncStore) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	return model.InsertTransaction(ctx, s.db, tx)
}

func (s *sqlSyncStore) UpdateAccountBalance(ctx context.Context, userID, accountID string, balance decimal.Decimal, currency string) error {
	return model.UpdateAccountBalance(ctx, s.db, userID, accountID, balance, currency)
}

func (s *sqlSyncStore) MarkSynced(ctx context.Context, credentialID string, at time.Time) error {
	return model.UpdateIntegrationLastSynced(ctx, s.db, credentialID, at)
}
