package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/model"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/providers"
	"github.com/financeflow/backend/src/providers/paypal"
	"github.com/financeflow/backend/src/providers/plaid"
	"github.com/financeflow/backend/src/providers/stripe"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

// ConnectOptions holds the provider clients. A nil client means the provider is
// not configured on this deployment.
type ConnectOptions struct {
	Plaid           *plaid.Client
	Stripe          *stripe.Client
	PayPal          *paypal.Client
	ProviderTimeout time.Duration
	Now             func() time.Time
}

type connectServiceImpl struct {
	db     model.Querier
	tokens TokenSealer
	opts   ConnectOptions
}

func NewConnectService(db model.Querier, tokens TokenSealer, opts ConnectOptions) ConnectService {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 20 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &connectServiceImpl{db: db, tokens: tokens, opts: opts}
}

func (s *connectServiceImpl) CreatePlaidLinkToken(ctx context.Context, userID string) (*plaid.LinkToken, error) {
	if s.opts.Plaid == nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, models.ProviderPlaid)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()
	return s.opts.Plaid.CreateLinkToken(ctx, userID)
}

// ExchangePlaidToken stores the item's access token and one account per Plaid account.
func (s *connectServiceImpl) ExchangePlaidToken(ctx context.Context, userID, publicToken, institutionName string) (*ConnectResult, error) {
	if s.opts.Plaid == nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, models.ProviderPlaid)
	}
	log := logger.FromContext(ctx)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	exchanged, err := s.opts.Plaid.ExchangePublicToken(callCtx, publicToken)
	if err != nil {
		return nil, err
	}
	accountsResp, err := s.opts.Plaid.GetAccounts(callCtx, exchanged.AccessToken)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{models.MetadataItemID: exchanged.ItemID}
	if accountsResp.Item.InstitutionID != "" {
		metadata[models.MetadataInstitutionID] = accountsResp.Item.InstitutionID
	}
	cred, err := s.storeCredential(ctx, userID, models.ProviderPlaid, exchanged.AccessToken, metadata)
	if err != nil {
		return nil, err
	}

	institution := institutionName
	if institution == "" {
		institution = accountsResp.Item.InstitutionID
	}
	accounts := make([]models.Account, 0, len(accountsResp.Accounts))
	for _, pa := range accountsResp.Accounts {
		acc := models.Account{
			UserID:            userID,
			Name:              pa.Name,
			Type:              plaid.AccountType(pa.Type),
			Institution:       institution,
			ExternalAccountID: pa.AccountID,
			Balance:           plaid.OpeningBalance(pa.Balances),
			Currency:          plaid.AccountCurrency(pa.Balances),
		}
		if err := model.UpsertExternalAccount(ctx, s.db, &acc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		accounts = append(accounts, acc)
	}

	log.Info("Plaid item connected", "integrationID", cred.ID, "accounts", len(accounts))
	return &ConnectResult{Integration: *cred, Accounts: accounts}, nil
}

func (s *connectServiceImpl) oauthConfig(provider models.Provider) (*oauth2.Config, error) {
	switch provider {
	case models.ProviderStripe:
		if s.opts.Stripe != nil {
			return s.opts.Stripe.OAuthConfig(), nil
		}
	case models.ProviderPayPal:
		if s.opts.PayPal != nil {
			return s.opts.PayPal.OAuthConfig(), nil
		}
	default:
		return nil, fmt.Errorf("%w: %s is not a processor", models.ErrUnknownProvider, provider)
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
}

// ProcessorAuthorizeURL is where the client sends the user to grant access.
func (s *connectServiceImpl) ProcessorAuthorizeURL(provider models.Provider, state string) (string, error) {
	cfg, err := s.oauthConfig(provider)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state), nil
}

// ConnectProcessor exchanges an OAuth authorization code and stores the
// resulting credential together with the processor's account.
func (s *connectServiceImpl) ConnectProcessor(ctx context.Context, userID string, provider models.Provider, code string) (*ConnectResult, error) {
	cfg, err := s.oauthConfig(provider)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()
	callCtx = context.WithValue(callCtx, oauth2.HTTPClient, providers.NewHTTPClient(s.opts.ProviderTimeout))

	token, err := cfg.Exchange(callCtx, code)
	if err != nil {
		return nil, exchangeError(provider, err)
	}

	accountID, err := s.processorAccountID(callCtx, provider, token)
	if err != nil {
		return nil, err
	}

	cred, err := s.storeCredential(ctx, userID, provider, token.AccessToken, map[string]string{models.MetadataAccountID: accountID})
	if err != nil {
		return nil, err
	}

	accountType := models.AccountTypeStripe
	if provider == models.ProviderPayPal {
		accountType = models.AccountTypePayPal
	}
	acc := models.Account{
		UserID:            userID,
		Name:              provider.DisplayName() + " Account",
		Type:              accountType,
		Institution:       provider.DisplayName(),
		ExternalAccountID: accountID,
		Balance:           decimal.Zero,
		Currency:          processorPlaceholderCurrency,
	}
	if err := model.UpsertExternalAccount(ctx, s.db, &acc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	log.Info("Processor connected", "provider", provider, "integrationID", cred.ID)
	return &ConnectResult{Integration: *cred, Accounts: []models.Account{acc}}, nil
}

// processorPlaceholderCurrency labels a processor account until its first
// balance reading replaces it with the provider's currency.
const processorPlaceholderCurrency = "USD"

func (s *connectServiceImpl) processorAccountID(ctx context.Context, provider models.Provider, token *oauth2.Token) (string, error) {
	switch provider {
	case models.ProviderStripe:
		if id, _ := token.Extra("stripe_user_id").(string); id != "" {
			return id, nil
		}
		return "", &providers.ProviderError{Provider: provider, Kind: providers.KindRejected,
			Err: errors.New("token response has no stripe_user_id")}
	case models.ProviderPayPal:
		info, err := s.opts.PayPal.GetUserInfo(ctx, token.AccessToken)
		if err != nil {
			return "", err
		}
		if info.PayerID != "" {
			return info.PayerID, nil
		}
		if info.UserID != "" {
			return info.UserID, nil
		}
		return "", &providers.ProviderError{Provider: provider, Kind: providers.KindRejected,
			Err: errors.New("userinfo has no payer id")}
	}
	return "", fmt.Errorf("%w: %s", models.ErrUnknownProvider, provider)
}

func exchangeError(provider models.Provider, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return providers.StatusError(provider, retrieveErr.Response.StatusCode, retrieveErr.ErrorCode, err)
	}
	return providers.TransportError(provider, err)
}

func (s *connectServiceImpl) storeCredential(ctx context.Context, userID string, provider models.Provider, accessToken string, metadata map[string]string) (*models.Credential, error) {
	sealed, err := s.tokens.Seal(accessToken)
	if err != nil {
		return nil, fmt.Errorf("seal %s token: %w", provider, err)
	}
	cred := &models.Credential{
		UserID:      userID,
		Provider:    provider,
		AccessToken: sealed,
		Metadata:    metadata,
	}
	if err := model.UpsertIntegration(ctx, s.db, cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return cred, nil
}

func (s *connectServiceImpl) ListIntegrations(ctx context.Context, userID string) ([]models.Credential, error) {
	creds, err := model.ListIntegrationsByUser(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return creds, nil
}

// Disconnect deactivates the credential. Synced accounts and transactions stay.
func (s *connectServiceImpl) Disconnect(ctx context.Context, userID, integrationID string) error {
	err := model.DeactivateIntegration(ctx, s.db, userID, integrationID, s.opts.Now())
	if errors.Is(err, model.ErrNotFound) {
		return ErrIntegrationNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	logger.FromContext(ctx).Info("Integration deactivated", "integrationID", integrationID)
	return nil
}

// PurgeInactive hard-deletes credentials deactivated longer ago than retention.
func (s *connectServiceImpl) PurgeInactive(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.opts.Now().Add(-retention)
	n, err := model.PurgeInactiveIntegrations(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	logger.FromContext(ctx).Info("Purged inactive integrations", "count", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	return n, nil
}
