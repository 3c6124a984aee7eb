package services

import (
	"context"
	"errors"
	"time"

	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/providers/plaid"
	"github.com/shopspring/decimal"
)

// Define common service errors
var (
	ErrCredentialNotFound    = errors.New("provider not connected")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrMissingUser           = errors.New("missing user identity")
	ErrProviderNotConfigured = errors.New("provider is not configured")
	ErrIntegrationNotFound   = errors.New("integration not found")
)

const (
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// SyncService runs the sync of a user's connected providers.
type SyncService interface {
	Sync(ctx context.Context, userID string, filter models.ProviderFilter) (*models.SyncReport, error)
}

// SyncStore is everything the sync path reads and writes. Every call is a
// single statement; nothing is cached between calls.
type SyncStore interface {
	ListActiveCredentials(ctx context.Context, userID string, providers []models.Provider) ([]models.Credential, error)
	ListAccounts(ctx context.Context, userID string) ([]models.Account, error)
	TransactionExists(ctx context.Context, provider models.Provider, externalID string) (bool, error)
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	UpdateAccountBalance(ctx context.Context, userID, accountID string, balance decimal.Decimal, currency string) error
	MarkSynced(ctx context.Context, credentialID string, at time.Time) error
}

// TokenSealer seals and opens provider access tokens.
type TokenSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// CacheInvalidator drops derived read models after their inputs change.
type CacheInvalidator interface {
	InvalidateUserCache(userID string)
}

// ConnectResult is returned after a provider is connected.
type ConnectResult struct {
	Integration models.Credential `json:"integration"`
	Accounts    []models.Account  `json:"accounts"`
}

// ConnectService manages provider credentials.
type ConnectService interface {
	CreatePlaidLinkToken(ctx context.Context, userID string) (*plaid.LinkToken, error)
	ExchangePlaidToken(ctx context.Context, userID, publicToken, institutionName string) (*ConnectResult, error)
	ProcessorAuthorizeURL(provider models.Provider, state string) (string, error)
	ConnectProcessor(ctx context.Context, userID string, provider models.Provider, code string) (*ConnectResult, error)
	ListIntegrations(ctx context.Context, userID string) ([]models.Credential, error)
	Disconnect(ctx context.Context, userID, integrationID string) error
	PurgeInactive(ctx context.Context, retention time.Duration) (int64, error)
}

// ReportService serves synced data and derived analytics.
type ReportService interface {
	GetDashboardSummary(ctx context.Context, userID string) (*models.DashboardSummary, error)
	ListAccounts(ctx context.Context, userID string) ([]models.Account, error)
	ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter) ([]models.Transaction, error)
	InvalidateUserCache(userID string)
}
