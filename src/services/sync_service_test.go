package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/financeflow/backend/src/database"
	"github.com/financeflow/backend/src/model"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/processors"
	"github.com/financeflow/backend/src/providers"
	"github.com/financeflow/backend/src/providers/stripe"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "user-1"

var syncStart = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

// plainTokens stores tokens unchanged; a token starting with "corrupt" cannot be opened.
type plainTokens struct{}

func (plainTokens) Seal(s string) (string, error) { return s, nil }
func (plainTokens) Open(s string) (string, error) {
	if strings.HasPrefix(s, "corrupt") {
		return "", errors.New("cannot decrypt")
	}
	return s, nil
}

// rawRecord is what a provider reports, keyed by the provider's account id.
type rawRecord struct {
	providerAccount string
	externalID      string
	txType          models.TransactionType
	amount          string
}

type fakeAdapter struct {
	provider models.Provider
	records  []rawRecord
	balances map[string]string // provider account -> balance
	currency string // defaults to USD
	err      error
	block    bool

	mu       sync.Mutex
	requests []providers.FetchRequest
}

func (f *fakeAdapter) Provider() models.Provider { return f.provider }

func (f *fakeAdapter) Fetch(ctx context.Context, req providers.FetchRequest) (*providers.FetchResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, providers.TransportError(f.provider, ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}

	currency := f.currency
	if currency == "" {
		currency = "USD"
	}
	res := &providers.FetchResult{}
	for _, r := range f.records {
		acc, ok := req.Accounts.Resolve(r.providerAccount)
		if !ok {
			res.Dropped++
			continue
		}
		res.Candidates = append(res.Candidates, models.Candidate{
			ExternalID:  r.externalID,
			AccountID:   acc.ID,
			Type:        r.txType,
			Amount:      decimal.RequireFromString(r.amount),
			Currency:    currency,
			Category:    "Food and Drink",
			Description: "Purchase " + r.externalID,
			Date:        syncStart.AddDate(0, 0, -2),
		})
	}
	for providerAccount, balance := range f.balances {
		if acc, ok := req.Accounts.Resolve(providerAccount); ok {
			res.Balances = append(res.Balances, models.BalanceReading{
				AccountID: acc.ID, Balance: decimal.RequireFromString(balance), Currency: "USD",
			})
		}
	}
	return res, nil
}

type recordingCache struct {
	mu    sync.Mutex
	users []string
}

func (c *recordingCache) InvalidateUserCache(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, userID)
}

// faultyStore wraps the SQL store and injects failures.
type faultyStore struct {
	SyncStore
	listErr       error
	insertErrs    map[string]error
	existsAlways  *bool
	markSyncedIDs []string
	mu            sync.Mutex
}

func (s *faultyStore) ListActiveCredentials(ctx context.Context, userID string, p []models.Provider) ([]models.Credential, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.SyncStore.ListActiveCredentials(ctx, userID, p)
}

func (s *faultyStore) TransactionExists(ctx context.Context, p models.Provider, externalID string) (bool, error) {
	if s.existsAlways != nil {
		return *s.existsAlways, nil
	}
	return s.SyncStore.TransactionExists(ctx, p, externalID)
}

func (s *faultyStore) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	if err, ok := s.insertErrs[tx.ExternalTransactionID]; ok {
		return err
	}
	return s.SyncStore.InsertTransaction(ctx, tx)
}

func (s *faultyStore) MarkSynced(ctx context.Context, credentialID string, at time.Time) error {
	s.mu.Lock()
	s.markSyncedIDs = append(s.markSyncedIDs, credentialID)
	s.mu.Unlock()
	return s.SyncStore.MarkSynced(ctx, credentialID, at)
}

type fixture struct {
	db       *sql.DB
	accounts map[string]*models.Account // by external id
	creds    map[models.Provider]*models.Credential
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{db: newTestDB(t), accounts: map[string]*models.Account{}, creds: map[models.Provider]*models.Credential{}}
}

func (f *fixture) connect(t *testing.T, p models.Provider, token string, metadata map[string]string) *models.Credential {
	t.Helper()
	cred := &models.Credential{UserID: testUser, Provider: p, AccessToken: token, Metadata: metadata}
	require.NoError(t, model.UpsertIntegration(context.Background(), f.db, cred))
	f.creds[p] = cred
	return cred
}

func (f *fixture) account(t *testing.T, externalID, balance string) *models.Account {
	t.Helper()
	acc := &models.Account{UserID: testUser, Name: externalID, Type: models.AccountTypeBank,
		ExternalAccountID: externalID, Balance: decimal.RequireFromString(balance), Currency: "USD"}
	require.NoError(t, model.UpsertExternalAccount(context.Background(), f.db, acc))
	f.accounts[externalID] = acc
	return acc
}

func (f *fixture) service(store SyncStore, cache CacheInvalidator, adapters ...providers.Adapter) SyncService {
	if store == nil {
		store = NewSQLSyncStore(f.db)
	}
	return NewSyncService(store, providers.NewRegistry(adapters...), plainTokens{},
		processors.NewTransactionProcessor(nil), cache,
		SyncOptions{FetchTimeout: time.Second, WindowDays: 30, Concurrency: 4, Now: func() time.Time { return syncStart }})
}

func (f *fixture) balance(t *testing.T, externalID string) string {
	t.Helper()
	accounts, err := model.GetAccountsByUser(context.Background(), f.db, testUser)
	require.NoError(t, err)
	for _, a := range accounts {
		if a.ExternalAccountID == externalID {
			return a.Balance.StringFixed(2)
		}
	}
	t.Fatalf("account %s not found", externalID)
	return ""
}

func (f *fixture) countTransactions(t *testing.T) int {
	t.Helper()
	n, err := model.CountTransactions(context.Background(), f.db, testUser)
	require.NoError(t, err)
	return n
}

func (f *fixture) lastSynced(t *testing.T, p models.Provider) *time.Time {
	t.Helper()
	cred, err := model.GetIntegrationByID(context.Background(), f.db, testUser, f.creds[p].ID)
	require.NoError(t, err)
	return cred.LastSyncedAt
}

func allFilter(t *testing.T) models.ProviderFilter {
	f, err := models.ParseProviderFilter("all")
	require.NoError(t, err)
	return f
}

func TestSync_ThreeCandidatesTwoNew(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	acc := f.account(t, "plaid-checking", "100.00")

	require.NoError(t, model.InsertTransaction(context.Background(), f.db, &models.Transaction{
		UserID: testUser, AccountID: acc.ID, Provider: models.ProviderPlaid, Type: models.TransactionTypeExpense,
		Amount: decimal.RequireFromString("5.00"), Currency: "USD", Category: "Other", Date: "2026-10-10",
		ExternalTransactionID: "t-1",
	}))

	adapter := &fakeAdapter{
		provider: models.ProviderPlaid,
		records: []rawRecord{
			{"plaid-checking", "t-1", models.TransactionTypeExpense, "5.00"},
			{"plaid-checking", "t-2", models.TransactionTypeExpense, "4.50"},
			{"plaid-checking", "t-3", models.TransactionTypeIncome, "10.00"},
		},
		balances: map[string]string{"plaid-checking": "85.50"},
	}
	cache := &recordingCache{}

	report, err := f.service(nil, cache, adapter).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)

	assert.Equal(t, 2, report.TransactionsSynced)
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.BalancesUpdated)

	assert.Equal(t, 3, f.countTransactions(t))
	assert.Equal(t, "85.50", f.balance(t, "plaid-checking"))

	synced := f.lastSynced(t, models.ProviderPlaid)
	require.NotNil(t, synced)
	assert.True(t, syncStart.Equal(*synced))
	assert.Equal(t, []string{testUser}, cache.users)

	require.Len(t, adapter.requests, 1)
	assert.Equal(t, "access-1", adapter.requests[0].AccessToken)
	assert.Equal(t, "2026-09-18", adapter.requests[0].Window.StartDate())
}

func TestSync_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	f.account(t, "plaid-checking", "100.00")

	adapter := &fakeAdapter{
		provider: models.ProviderPlaid,
		records: []rawRecord{
			{"plaid-checking", "t-1", models.TransactionTypeExpense, "5.00"},
			{"plaid-checking", "t-2", models.TransactionTypeIncome, "7.25"},
		},
		balances: map[string]string{"plaid-checking": "85.50"},
	}
	svc := f.service(nil, nil, adapter)

	first, err := svc.Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	assert.Equal(t, 2, first.TransactionsSynced)

	second, err := svc.Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	assert.Equal(t, 0, second.TransactionsSynced)
	assert.Equal(t, 2, second.Results[0].Skipped)

	assert.Equal(t, 2, f.countTransactions(t))
	assert.Equal(t, "85.50", f.balance(t, "plaid-checking"))
}

func TestSync_DuplicateIDsNeverOverwrite(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	f.account(t, "plaid-checking", "0")

	first := &fakeAdapter{provider: models.ProviderPlaid, records: []rawRecord{
		{"plaid-checking", "t-1", models.TransactionTypeExpense, "5.00"},
		{"plaid-checking", "t-1", models.TransactionTypeExpense, "9.99"},
	}}
	report, err := f.service(nil, nil, first).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Results[0].Inserted)
	assert.Equal(t, 1, report.Results[0].Skipped)

	second := &fakeAdapter{provider: models.ProviderPlaid, records: []rawRecord{
		{"plaid-checking", "t-1", models.TransactionTypeIncome, "42.00"},
	}}
	_, err = f.service(nil, nil, second).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)

	txs, err := model.ListTransactions(context.Background(), f.db, testUser, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "5.00", txs[0].Amount.StringFixed(2))
	assert.Equal(t, models.TransactionTypeExpense, txs[0].Type)
}

func TestSync_BalanceIsReplacedNotAccumulated(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderStripe, "sk-1", map[string]string{models.MetadataAccountID: "acct_1"})
	f.account(t, "acct_1", "0")
	adapter := &fakeAdapter{provider: models.ProviderStripe, balances: map[string]string{"acct_1": "100.00"}}
	svc := f.service(nil, nil, adapter)

	_, err := svc.Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	assert.Equal(t, "100.00", f.balance(t, "acct_1"))

	adapter.balances["acct_1"] = "85.50"
	_, err = svc.Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	assert.Equal(t, "85.50", f.balance(t, "acct_1"))
}

func TestSync_SameExternalIDAcrossProvidersIsDistinct(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderStripe, "sk-1", nil)
	f.connect(t, models.ProviderPayPal, "pp-1", nil)
	f.account(t, "acct_stripe", "0")
	f.account(t, "acct_paypal", "0")

	stripeAdapter := &fakeAdapter{provider: models.ProviderStripe,
		records: []rawRecord{{"acct_stripe", "shared-1", models.TransactionTypeIncome, "1.00"}}}
	paypalAdapter := &fakeAdapter{provider: models.ProviderPayPal,
		records: []rawRecord{{"acct_paypal", "shared-1", models.TransactionTypeIncome, "2.00"}}}

	report, err := f.service(nil, nil, stripeAdapter, paypalAdapter).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	assert.Equal(t, 2, report.TransactionsSynced)
}

func TestSync_PartialFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	f.connect(t, models.ProviderStripe, "sk-1", nil)
	f.account(t, "plaid-checking", "10.00")
	f.account(t, "acct_1", "0")

	plaidAdapter := &fakeAdapter{provider: models.ProviderPlaid, err: &providers.ProviderError{
		Provider: models.ProviderPlaid, Kind: providers.KindUnauthorized, StatusCode: 400, Code: "ITEM_LOGIN_REQUIRED",
	}}
	stripeAdapter := &fakeAdapter{provider: models.ProviderStripe,
		records:  []rawRecord{{"acct_1", "ch_1", models.TransactionTypeIncome, "25.00"}},
		balances: map[string]string{"acct_1": "25.00"}}

	report, err := f.service(nil, nil, plaidAdapter, stripeAdapter).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)

	assert.False(t, report.AllFailed())
	assert.Equal(t, 1, report.TransactionsSynced)
	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, models.ProviderPlaid, failures[0].Provider)
	assert.Equal(t, models.ReasonReauthRequired, failures[0].Reason)

	assert.Nil(t, f.lastSynced(t, models.ProviderPlaid))
	assert.NotNil(t, f.lastSynced(t, models.ProviderStripe))
	assert.Equal(t, "10.00", f.balance(t, "plaid-checking"))
	assert.Equal(t, "25.00", f.balance(t, "acct_1"))

	// Authorization failures never deactivate the credential.
	active, err := model.GetActiveIntegrations(context.Background(), f.db, testUser, models.AllProviders)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestSync_AllFailed(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	f.connect(t, models.ProviderPayPal, "corrupt-token", nil)

	plaidAdapter := &fakeAdapter{provider: models.ProviderPlaid,
		err: providers.StatusError(models.ProviderPlaid, 503, "", nil)}
	paypalAdapter := &fakeAdapter{provider: models.ProviderPayPal}

	report, err := f.service(nil, nil, plaidAdapter, paypalAdapter).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)

	assert.True(t, report.AllFailed())
	assert.False(t, report.ReconnectRequired())
	reasons := map[models.Provider]string{}
	for _, r := range report.Results {
		reasons[r.Provider] = r.Reason
	}
	assert.Equal(t, models.ReasonProviderUnavailable, reasons[models.ProviderPlaid])
	assert.Equal(t, models.ReasonCredentialUnreadable, reasons[models.ProviderPayPal])
	assert.Empty(t, paypalAdapter.requests, "an unreadable token never reaches the provider")
}

func TestSync_UnmappedAccountsAreDropped(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	f.account(t, "plaid-checking", "0")

	adapter := &fakeAdapter{provider: models.ProviderPlaid, records: []rawRecord{
		{"plaid-checking", "t-1", models.TransactionTypeExpense, "1.00"},
		{"plaid-savings", "t-2", models.TransactionTypeExpense, "2.00"},
	}}
	svc := f.service(nil, nil, adapter)

	report, err := svc.Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	assert.Equal(t, 1, report.TransactionsSynced)
	assert.Equal(t, 1, report.Results[0].Dropped)
	assert.True(t, report.Results[0].Success)

	// Once the account exists the next pass picks the transaction up.
	f.account(t, "plaid-savings", "0")
	report, err = svc.Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	assert.Equal(t, 1, report.TransactionsSynced)
	assert.Equal(t, 0, report.Results[0].Dropped)
}

func TestSync_ProviderFilter(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	plaidAdapter := &fakeAdapter{provider: models.ProviderPlaid}
	stripeAdapter := &fakeAdapter{provider: models.ProviderStripe}
	svc := f.service(nil, nil, plaidAdapter, stripeAdapter)

	processor, err := models.ParseProviderFilter("processor")
	require.NoError(t, err)
	_, err = svc.Sync(context.Background(), testUser, processor)
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	aggregator, err := models.ParseProviderFilter("aggregator")
	require.NoError(t, err)
	report, err := svc.Sync(context.Background(), testUser, aggregator)
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
	assert.Empty(t, stripeAdapter.requests)

	report, err = svc.Sync(context.Background(), "user-without-credentials", allFilter(t))
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.False(t, report.AllFailed())
}

func TestSync_RegistryReadFailure(t *testing.T) {
	f := newFixture(t)
	store := &faultyStore{SyncStore: NewSQLSyncStore(f.db), listErr: errors.New("database is locked")}

	_, err := f.service(store, nil).Sync(context.Background(), testUser, allFilter(t))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrCredentialNotFound)
}

func TestSync_MissingUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.service(nil, nil).Sync(context.Background(), "", allFilter(t))
	assert.ErrorIs(t, err, ErrMissingUser)
}

func TestSync_WriteFailureKeepsLastSyncedUntouched(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	f.account(t, "plaid-checking", "100.00")

	store := &faultyStore{
		SyncStore:  NewSQLSyncStore(f.db),
		insertErrs: map[string]error{"t-2": errors.New("disk I/O error")},
	}
	adapter := &fakeAdapter{provider: models.ProviderPlaid,
		records: []rawRecord{
			{"plaid-checking", "t-1", models.TransactionTypeExpense, "1.00"},
			{"plaid-checking", "t-2", models.TransactionTypeExpense, "2.00"},
			{"plaid-checking", "t-3", models.TransactionTypeExpense, "3.00"},
		},
		balances: map[string]string{"plaid-checking": "94.00"}}

	report, err := f.service(store, nil, adapter).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)

	res := report.Results[0]
	assert.False(t, res.Success)
	assert.Equal(t, models.ReasonStorageError, res.Reason)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.WriteFailures)
	assert.Equal(t, 2, report.TransactionsSynced)
	assert.Empty(t, store.markSyncedIDs)
	assert.Nil(t, f.lastSynced(t, models.ProviderPlaid))
}

func TestSync_DuplicateOnInsertIsSoftSkip(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	acc := f.account(t, "plaid-checking", "0")

	// Another sync wrote t-1 after our existence check.
	require.NoError(t, model.InsertTransaction(context.Background(), f.db, &models.Transaction{
		UserID: testUser, AccountID: acc.ID, Provider: models.ProviderPlaid, Type: models.TransactionTypeExpense,
		Amount: decimal.RequireFromString("1.00"), Currency: "USD", Date: "2026-10-16", ExternalTransactionID: "t-1",
	}))
	notExists := false
	store := &faultyStore{SyncStore: NewSQLSyncStore(f.db), existsAlways: &notExists}
	adapter := &fakeAdapter{provider: models.ProviderPlaid,
		records: []rawRecord{{"plaid-checking", "t-1", models.TransactionTypeExpense, "1.00"}}}

	report, err := f.service(store, nil, adapter).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)

	res := report.Results[0]
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.WriteFailures)
	assert.Equal(t, []string{f.creds[models.ProviderPlaid].ID}, store.markSyncedIDs)
}

func TestSync_FetchTimeoutIsTransient(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	adapter := &fakeAdapter{provider: models.ProviderPlaid, block: true}

	svc := NewSyncService(NewSQLSyncStore(f.db), providers.NewRegistry(adapter), plainTokens{},
		processors.NewTransactionProcessor(nil), nil,
		SyncOptions{FetchTimeout: 50 * time.Millisecond, Concurrency: 1})

	report, err := svc.Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, models.ReasonProviderUnavailable, report.Results[0].Reason)
	assert.True(t, report.AllFailed())
}

func TestSync_UnsupportedProvider(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPayPal, "pp-1", nil)

	report, err := f.service(nil, nil).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, models.ReasonUnsupportedProvider, report.Results[0].Reason)
}

func TestSync_NothingChangedKeepsCache(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	cache := &recordingCache{}

	_, err := f.service(nil, cache, &fakeAdapter{provider: models.ProviderPlaid}).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	assert.Empty(t, cache.users)
}

func TestSync_PaginatedFetchOutlastsSingleCallTimeout(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderStripe, "sk-1", map[string]string{models.MetadataAccountID: "acct_1"})
	f.account(t, "acct_1", "0")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(60 * time.Millisecond)
		if r.URL.Path == "/v1/balance" {
			w.Write([]byte(`{"available":[{"amount":4000,"currency":"eur"}]}`))
			return
		}
		page := map[string]int{"": 1, "ch_1": 2, "ch_2": 3}[r.URL.Query().Get("starting_after")]
		fmt.Fprintf(w, `{"has_more":%t,"data":[{"id":"ch_%d","amount":1000,"currency":"eur","status":"succeeded","created":1790000000}]}`,
			page < 3, page)
	}))
	t.Cleanup(srv.Close)

	// Every call fits in 150ms; the whole fetch takes four calls.
	client := stripe.NewClient(stripe.Config{APIBaseURL: srv.URL, Timeout: 150 * time.Millisecond})
	svc := NewSyncService(NewSQLSyncStore(f.db), providers.NewRegistry(stripe.NewAdapter(client)), plainTokens{},
		processors.NewTransactionProcessor(nil), nil,
		SyncOptions{WindowDays: 30, Concurrency: 1, Now: func() time.Time { return syncStart }})

	report, err := svc.Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Success, report.Results[0].Error)
	assert.Equal(t, 3, report.TransactionsSynced)

	accounts, err := model.GetAccountsByUser(context.Background(), f.db, testUser)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "40.00", accounts[0].Balance.StringFixed(2))
	assert.Equal(t, "EUR", accounts[0].Currency, "the balance is stored in the provider's currency")
}

func TestSync_RejectedCandidatesAreReported(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	f.account(t, "plaid-checking", "0")

	adapter := &fakeAdapter{provider: models.ProviderPlaid, currency: "USDT", records: []rawRecord{
		{"plaid-checking", "t-1", models.TransactionTypeExpense, "1.00"},
		{"plaid-savings", "t-2", models.TransactionTypeExpense, "2.00"},
	}}

	report, err := f.service(nil, nil, adapter).Sync(context.Background(), testUser, allFilter(t))
	require.NoError(t, err)
	res := report.Results[0]
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Dropped, "unmapped account")
	assert.Equal(t, 1, res.Rejected, "unusable currency")
}

func TestSync_InvalidBalanceCurrencyKeepsStoredOne(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	acc := f.account(t, "plaid-checking", "0")

	res := &models.CredentialResult{}
	svc := f.service(nil, nil).(*syncServiceImpl)
	svc.reconcile(context.Background(), testUser, *f.creds[models.ProviderPlaid], nil,
		[]models.BalanceReading{{AccountID: acc.ID, Balance: decimal.RequireFromString("12.00"), Currency: "points"}}, res)

	assert.Equal(t, 1, res.BalancesUpdated)
	accounts, err := model.GetAccountsByUser(context.Background(), f.db, testUser)
	require.NoError(t, err)
	assert.Equal(t, "USD", accounts[0].Currency)
	assert.Equal(t, "12.00", accounts[0].Balance.StringFixed(2))
}

// cancellingStore cancels the request once the credentials have been read.
type cancellingStore struct {
	SyncStore
	cancel context.CancelFunc
}

func (s *cancellingStore) ListActiveCredentials(ctx context.Context, userID string, p []models.Provider) ([]models.Credential, error) {
	creds, err := s.SyncStore.ListActiveCredentials(ctx, userID, p)
	s.cancel()
	return creds, err
}

func TestSync_CancelledRequestSkipsUnstartedCredentials(t *testing.T) {
	f := newFixture(t)
	f.connect(t, models.ProviderPlaid, "access-1", nil)
	f.connect(t, models.ProviderStripe, "sk-1", nil)
	plaidAdapter := &fakeAdapter{provider: models.ProviderPlaid}
	stripeAdapter := &fakeAdapter{provider: models.ProviderStripe}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{SyncStore: NewSQLSyncStore(f.db), cancel: cancel}

	report, err := f.service(store, nil, plaidAdapter, stripeAdapter).Sync(ctx, testUser, allFilter(t))
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.False(t, res.Success)
		assert.Equal(t, models.ReasonProviderUnavailable, res.Reason)
		assert.NotEmpty(t, res.CredentialID)
	}
	assert.Empty(t, plaidAdapter.requests)
	assert.Empty(t, stripeAdapter.requests)
}
