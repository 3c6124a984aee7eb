package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/model"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/processors"
	"github.com/financeflow/backend/src/providers"
	"github.com/financeflow/backend/src/security/validation"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// DefaultFetchTimeout bounds one credential's whole fetch: every page, the
// balance call and the limiter waits in between. Single provider calls are
// bounded by the provider clients.
const DefaultFetchTimeout = 90 * time.Second

// SyncOptions tunes the sync service. Zero values fall back to defaults.
type SyncOptions struct {
	FetchTimeout time.Duration
	WindowDays   int
	Concurrency  int
	Now          func() time.Time
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.WindowDays <= 0 {
		o.WindowDays = 30
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type syncServiceImpl struct {
	store     SyncStore
	adapters  *providers.Registry
	tokens    TokenSealer
	processor *processors.TransactionProcessor
	cache     CacheInvalidator
	opts      SyncOptions
}

// NewSyncService wires the orchestrator. cache may be nil.
func NewSyncService(
	store SyncStore,
	adapters *providers.Registry,
	tokens TokenSealer,
	processor *processors.TransactionProcessor,
	cache CacheInvalidator,
	opts SyncOptions,
) SyncService {
	return &syncServiceImpl{
		store:     store,
		adapters:  adapters,
		tokens:    tokens,
		processor: processor,
		cache:     cache,
		opts:      opts.withDefaults(),
	}
}

// Sync processes every active credential matched by filter. Credentials run in
// parallel and fail independently; the report lists each outcome.
func (s *syncServiceImpl) Sync(ctx context.Context, userID string, filter models.ProviderFilter) (*models.SyncReport, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	log := logger.FromContext(ctx)
	startedAt := s.opts.Now().UTC()

	creds, err := s.store.ListActiveCredentials(ctx, userID, filter.Providers)
	if err != nil {
		log.Error("Failed to read credentials for sync", "filter", filter.Name, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(creds) == 0 && !filter.All() {
		return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, filter.Name)
	}

	report := &models.SyncReport{
		StartedAt: startedAt,
		Results:   make([]models.CredentialResult, len(creds)),
	}

	// Each credential's outcome lands in its own slot of report.Results.
	sem := semaphore.NewWeighted(int64(s.opts.Concurrency))
	var wg sync.WaitGroup
	for i, cred := range creds {
		if err := sem.Acquire(ctx, 1); err != nil {
			// The caller went away; credentials not yet started are reported, not run.
			report.Results[i] = models.CredentialResult{
				CredentialID: cred.ID,
				Provider:     cred.Provider,
				Reason:       models.ReasonProviderUnavailable,
				Error:        err.Error(),
			}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			report.Results[i] = s.syncCredential(ctx, userID, cred, startedAt)
		}()
	}
	wg.Wait()

	changed := false
	for _, res := range report.Results {
		report.TransactionsSynced += res.Inserted
		if res.Inserted > 0 || res.BalancesUpdated > 0 {
			changed = true
		}
	}
	report.FinishedAt = s.opts.Now().UTC()

	if changed && s.cache != nil {
		s.cache.InvalidateUserCache(userID)
	}

	log.Info("Sync finished",
		"filter", filter.Name,
		"credentials", len(creds),
		"failed", len(report.Failures()),
		"transactionsSynced", report.TransactionsSynced,
		"duration", report.FinishedAt.Sub(startedAt).String())
	return report, nil
}

func (s *syncServiceImpl) syncCredential(ctx context.Context, userID string, cred models.Credential, startedAt time.Time) models.CredentialResult {
	res := models.CredentialResult{CredentialID: cred.ID, Provider: cred.Provider}
	log := logger.FromContext(ctx).With(slog.String("credentialID", cred.ID), slog.String("provider", string(cred.Provider)))
	ctx = logger.ToContext(ctx, log)

	fail := func(reason string, err error) models.CredentialResult {
		res.Success = false
		res.Reason = reason
		res.Error = err.Error()
		log.Warn("Credential sync failed", "reason", reason, "error", err)
		return res
	}

	adapter, err := s.adapters.Get(cred.Provider)
	if err != nil {
		return fail(models.ReasonUnsupportedProvider, err)
	}

	accessToken, err := s.tokens.Open(cred.AccessToken)
	if err != nil {
		return fail(models.ReasonCredentialUnreadable, err)
	}

	// Accounts are read fresh on every pass so new or renamed accounts are seen.
	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return fail(models.ReasonStorageError, err)
	}

	index := providers.NewAccountIndex(accounts)
	window := providers.TrailingWindow(startedAt, s.opts.WindowDays)
	log.Debug("Fetching from provider", "mappedAccounts", index.Len(), "from", window.StartDate(), "to", window.EndDate())

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	fetched, err := adapter.Fetch(fetchCtx, providers.FetchRequest{
		AccessToken: accessToken,
		Metadata:    cred.Metadata,
		Window:      window,
		Accounts:    index,
	})
	fetchExpired := fetchCtx.Err() != nil
	cancel()
	if err != nil {
		if providers.IsTimeout(err) {
			log.Warn("Provider timed out", "fetchBudgetExhausted", fetchExpired, "fetchTimeout", s.opts.FetchTimeout.String())
		}
		return fail(providers.ReasonFor(err), err)
	}

	candidates, rejected := s.processor.Process(ctx, cred.Provider, fetched.Candidates)
	res.Dropped = fetched.Dropped
	res.Rejected = rejected

	s.reconcile(ctx, userID, cred, candidates, fetched.Balances, &res)

	if res.WriteFailures > 0 {
		// last_synced_at stays put so the next pass retries the whole window.
		return fail(models.ReasonStorageError, fmt.Errorf("%d writes failed", res.WriteFailures))
	}
	if err := s.store.MarkSynced(ctx, cred.ID, startedAt); err != nil {
		log.Error("Failed to record last sync time", "error", err)
	}

	res.Success = true
	log.Info("Credential synced",
		"inserted", res.Inserted,
		"skipped", res.Skipped,
		"dropped", res.Dropped,
		"rejected", res.Rejected,
		"balancesUpdated", res.BalancesUpdated)
	return res
}

// reconcile writes new candidates one statement at a time, then replaces the
// balances. A failed write is counted and the pass continues.
func (s *syncServiceImpl) reconcile(
	ctx context.Context,
	userID string,
	cred models.Credential,
	candidates []models.Candidate,
	balances []models.BalanceReading,
	res *models.CredentialResult,
) {
	log := logger.FromContext(ctx)

	for _, c := range candidates {
		exists, err := s.store.TransactionExists(ctx, cred.Provider, c.ExternalID)
		if err != nil {
			log.Error("Dedup lookup failed", "externalID", c.ExternalID, "error", err)
			res.WriteFailures++
			continue
		}
		if exists {
			res.Skipped++
			continue
		}

		tx := &models.Transaction{
			ID:                    uuid.NewString(),
			UserID:                userID,
			AccountID:             c.AccountID,
			Provider:              cred.Provider,
			Type:                  c.Type,
			Amount:                c.Amount,
			Currency:              c.Currency,
			Category:              c.Category,
			Description:           c.Description,
			Date:                  c.Date.Format(models.DateLayout),
			ExternalTransactionID: c.ExternalID,
		}
		err = s.store.InsertTransaction(ctx, tx)
		switch {
		case err == nil:
			res.Inserted++
		case errors.Is(err, model.ErrDuplicate):
			// A concurrent sync inserted it between our check and insert.
			res.Skipped++
		default:
			log.Error("Failed to insert transaction", "externalID", c.ExternalID, "error", err)
			res.WriteFailures++
		}
	}

	for _, b := range balances {
		// An unusable currency keeps the account's stored one.
		currency, err := validation.ValidateCurrencyCode(b.Currency)
		if err != nil {
			log.Warn("Ignoring balance currency", "accountID", b.AccountID, "currency", b.Currency)
			currency = ""
		}
		if err := s.store.UpdateAccountBalance(ctx, userID, b.AccountID, b.Balance, currency); err != nil {
			log.Error("Failed to update account balance", "accountID", b.AccountID, "error", err)
			res.WriteFailures++
			continue
		}
		res.BalancesUpdated++
	}
}
