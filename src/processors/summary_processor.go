package processors

import (
	"sort"
	"time"

	"github.com/financeflow/backend/src/models"
	"github.com/shopspring/decimal"
)

const summaryMonths = 6

// BuildDashboardSummary aggregates accounts and transactions into the dashboard
// read model. Totals are kept per currency; nothing is converted.
func BuildDashboardSummary(accounts []models.Account, txs []models.Transaction, totalTransactions int, now time.Time) models.DashboardSummary {
	summary := models.DashboardSummary{
		Balances:          []models.CurrencyAmount{},
		Income30d:         []models.CurrencyAmount{},
		Expense30d:        []models.CurrencyAmount{},
		ExpenseByCategory: []models.CategoryTotal{},
		Monthly:           []models.MonthlyPoint{},
		AccountCount:      len(accounts),
		TransactionCount:  totalTransactions,
		HasData:           len(accounts) > 0 || totalTransactions > 0,
	}

	balances := map[string]decimal.Decimal{}
	for _, a := range accounts {
		balances[a.Currency] = balances[a.Currency].Add(a.Balance)
	}
	summary.Balances = currencyAmounts(balances)

	recentFrom := now.AddDate(0, 0, -30).Format(models.DateLayout)
	firstMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(summaryMonths - 1), 0)

	income, expense := map[string]decimal.Decimal{}, map[string]decimal.Decimal{}
	byCategory := map[[2]string]decimal.Decimal{}
	monthly := map[[2]string]*models.MonthlyPoint{}

	for _, t := range txs {
		if t.Date >= recentFrom {
			if t.Type == models.TransactionTypeIncome {
				income[t.Currency] = income[t.Currency].Add(t.Amount)
			} else {
				expense[t.Currency] = expense[t.Currency].Add(t.Amount)
				key := [2]string{t.Category, t.Currency}
				byCategory[key] = byCategory[key].Add(t.Amount)
			}
		}

		date, err := time.Parse(models.DateLayout, t.Date)
		if err != nil || date.Before(firstMonth) {
			continue
		}
		key := [2]string{date.Format("2006-01"), t.Currency}
		point, ok := monthly[key]
		if !ok {
			point = &models.MonthlyPoint{Month: key[0], Currency: key[1], Income: decimal.Zero, Expense: decimal.Zero}
			monthly[key] = point
		}
		if t.Type == models.TransactionTypeIncome {
			point.Income = point.Income.Add(t.Amount)
		} else {
			point.Expense = point.Expense.Add(t.Amount)
		}
	}

	summary.Income30d = currencyAmounts(income)
	summary.Expense30d = currencyAmounts(expense)

	for key, amount := range byCategory {
		summary.ExpenseByCategory = append(summary.ExpenseByCategory, models.CategoryTotal{Category: key[0], Currency: key[1], Amount: amount})
	}
	sort.Slice(summary.ExpenseByCategory, func(i, j int) bool {
		a, b := summary.ExpenseByCategory[i], summary.ExpenseByCategory[j]
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.Category+a.Currency < b.Category+b.Currency
	})

	for _, point := range monthly {
		summary.Monthly = append(summary.Monthly, *point)
	}
	sort.Slice(summary.Monthly, func(i, j int) bool {
		if summary.Monthly[i].Month != summary.Monthly[j].Month {
			return summary.Monthly[i].Month < summary.Monthly[j].Month
		}
		return summary.Monthly[i].Currency < summary.Monthly[j].Currency
	})

	return summary
}

func currencyAmounts(totals map[string]decimal.Decimal) []models.CurrencyAmount {
	out := make([]models.CurrencyAmount, 0, len(totals))
	for currency, amount := range totals {
		out = append(out, models.CurrencyAmount{Currency: currency, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// SummaryWindowStart is the earliest transaction date the summary looks at.
func SummaryWindowStart(now time.Time) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(summaryMonths - 1), 0)
	recent := now.AddDate(0, 0, -30)
	if recent.Before(first) {
		first = recent
	}
	return first.Format(models.DateLayout)
}
