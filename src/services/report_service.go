package services

import (
	"context"
	"fmt"
	"time"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/model"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/processors"
	"github.com/patrickmn/go-cache"
)

const ckDashboardSummary = "agg_dashboard_summary_user_%s"

type reportServiceImpl struct {
	db          model.Querier
	reportCache *cache.Cache
	now         func() time.Time
}

func NewReportService(db model.Querier, reportCache *cache.Cache) ReportService {
	return &reportServiceImpl{db: db, reportCache: reportCache, now: time.Now}
}

// GetDashboardSummary is cached per user until a sync changes the user's data.
func (s *reportServiceImpl) GetDashboardSummary(ctx context.Context, userID string) (*models.DashboardSummary, error) {
	cacheKey := fmt.Sprintf(ckDashboardSummary, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		if summary, ok := cached.(*models.DashboardSummary); ok {
			logger.FromContext(ctx).Debug("Dashboard summary cache hit", "key", cacheKey)
			return summary, nil
		}
	}

	now := s.now().UTC()
	accounts, err := model.GetAccountsByUser(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	txs, err := model.ListTransactionsBetween(ctx, s.db, userID, processors.SummaryWindowStart(now), now.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	total, err := model.CountTransactions(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	summary := processors.BuildDashboardSummary(accounts, txs, total, now)
	s.reportCache.Set(cacheKey, &summary, DefaultCacheExpiration)
	return &summary, nil
}

func (s *reportServiceImpl) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	accounts, err := model.GetAccountsByUser(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return accounts, nil
}

func (s *reportServiceImpl) ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter) ([]models.Transaction, error) {
	txs, err := model.ListTransactions(ctx, s.db, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return txs, nil
}

// InvalidateUserCache drops every cached read model of the user.
func (s *reportServiceImpl) InvalidateUserCache(userID string) {
	s.reportCache.Delete(fmt.Sprintf(ckDashboardSummary, userID))
	logger.L.Debug("Invalidated report cache", "userID", userID)
}
