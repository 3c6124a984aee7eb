// Package app wires configuration into the services shared by the HTTP
// server and the command line tool.
package app

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/financeflow/backend/src/config"
	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/processors"
	"github.com/financeflow/backend/src/providers"
	"github.com/financeflow/backend/src/providers/paypal"
	"github.com/financeflow/backend/src/providers/plaid"
	"github.com/financeflow/backend/src/providers/stripe"
	"github.com/financeflow/backend/src/security"
	"github.com/financeflow/backend/src/services"
	"github.com/patrickmn/go-cache"
)

type App struct {
	Auth    *security.AuthService
	Sync    services.SyncService
	Connect services.ConnectService
	Report  services.ReportService
}

// Build creates the services. Providers without credentials in cfg are left
// out: their adapters are not registered and their connect flows report
// ErrProviderNotConfigured.
func Build(cfg *config.AppConfig, db *sql.DB) (*App, error) {
	tokens, err := security.NewTokenBox(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("token encryption: %w", err)
	}

	categories, err := processors.LoadCategoryMap(cfg.CategoryMapPath)
	if err != nil {
		return nil, fmt.Errorf("category map: %w", err)
	}

	connectOpts := services.ConnectOptions{ProviderTimeout: cfg.ProviderTimeout}
	var adapters []providers.Adapter

	if cfg.PlaidClientID != "" && cfg.PlaidSecret != "" {
		connectOpts.Plaid = plaid.NewClient(plaid.Config{
			ClientID:      cfg.PlaidClientID,
			Secret:        cfg.PlaidSecret,
			Env:           cfg.PlaidEnv,
			Timeout:       cfg.ProviderTimeout,
			RatePerSecond: cfg.ProviderRatePerSecond,
		})
		adapters = append(adapters, plaid.NewAdapter(connectOpts.Plaid))
	}
	if cfg.StripeClientID != "" && cfg.StripeSecretKey != "" {
		connectOpts.Stripe = stripe.NewClient(stripe.Config{
			APIBaseURL:    cfg.StripeAPIBaseURL,
			ClientID:      cfg.StripeClientID,
			SecretKey:     cfg.StripeSecretKey,
			RedirectURL:   callbackURL(cfg.FrontendBaseURL, models.ProviderStripe),
			Timeout:       cfg.ProviderTimeout,
			RatePerSecond: cfg.ProviderRatePerSecond,
		})
		adapters = append(adapters, stripe.NewAdapter(connectOpts.Stripe))
	}
	if cfg.PayPalClientID != "" && cfg.PayPalClientSecret != "" {
		connectOpts.PayPal = paypal.NewClient(paypal.Config{
			ClientID:      cfg.PayPalClientID,
			ClientSecret:  cfg.PayPalClientSecret,
			Env:           cfg.PayPalEnv,
			RedirectURL:   callbackURL(cfg.FrontendBaseURL, models.ProviderPayPal),
			Timeout:       cfg.ProviderTimeout,
			RatePerSecond: cfg.ProviderRatePerSecond,
		})
		adapters = append(adapters, paypal.NewAdapter(connectOpts.PayPal))
	}
	logger.L.Info("Provider adapters registered", "count", len(adapters))

	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	reportService := services.NewReportService(db, reportCache)

	syncService := services.NewSyncService(
		services.NewSQLSyncStore(db),
		providers.NewRegistry(adapters...),
		tokens,
		processors.NewTransactionProcessor(categories),
		reportService,
		services.SyncOptions{
			FetchTimeout: cfg.SyncFetchTimeout,
			WindowDays:   cfg.SyncWindowDays,
			Concurrency:  cfg.SyncConcurrency,
		},
	)

	return &App{
		Auth:    security.NewAuthService(cfg.JWTSecret),
		Sync:    syncService,
		Connect: services.NewConnectService(db, tokens, connectOpts),
		Report:  reportService,
	}, nil
}

func callbackURL(frontendBaseURL string, p models.Provider) string {
	return strings.TrimRight(frontendBaseURL, "/") + "/integrations/" + string(p) + "/callback"
}
