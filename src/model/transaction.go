package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/financeflow/backend/src/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
)

const transactionColumns = `id, user_id, account_id, provider, type, amount, currency, category, description, date, external_transaction_id, created_at`

// TransactionExists is the fast-path dedup check. The unique index on
// (provider, external_transaction_id) remains the guarantee.
func TransactionExists(ctx context.Context, q Querier, provider models.Provider, externalID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM transactions WHERE provider = ? AND external_transaction_id = ? LIMIT 1`,
		string(provider), externalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check transaction %s/%s: %w", provider, externalID, err)
	}
	return true, nil
}

// InsertTransaction writes one row. A unique violation is returned wrapped in ErrDuplicate.
func InsertTransaction(ctx context.Context, q Querier, t *models.Transaction) error {
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction amount must not be negative, got %s", t.Amount)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO transactions (id, user_id, account_id, provider, type, amount, currency, category, description, date, external_transaction_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		t.ID, t.UserID, t.AccountID, string(t.Provider), string(t.Type), t.Amount.String(), t.Currency,
		t.Category, t.Description, t.Date, nullString(t.ExternalTransactionID), t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, t.Provider, t.ExternalTransactionID)
		}
		return fmt.Errorf("insert transaction %s/%s: %w", t.Provider, t.ExternalTransactionID, err)
	}
	return nil
}

// ListTransactions pages through the user's transactions, newest first.
func ListTransactions(ctx context.Context, q Querier, userID string, f models.TransactionFilter) ([]models.Transaction, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if f.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	query += ` ORDER BY date DESC, created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return queryTransactions(ctx, q, query, args...)
}

// ListTransactionsBetween returns the user's transactions dated within [from, to], as YYYY-MM-DD.
func ListTransactionsBetween(ctx context.Context, q Querier, userID, from, to string) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ? AND date >= ? AND date <= ? ORDER BY date, id`
	return queryTransactions(ctx, q, query, userID, from, to)
}

func CountTransactions(ctx context.Context, q Querier, userID string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func queryTransactions(ctx context.Context, q Querier, query string, args ...any) ([]models.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var provider, txType, amount string
		var externalID sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &provider, &txType, &amount, &t.Currency,
			&t.Category, &t.Description, &t.Date, &externalID, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Provider = models.Provider(provider)
		t.Type = models.TransactionType(txType)
		t.ExternalTransactionID = externalID.String
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s has invalid amount %q: %w", t.ID, amount, err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
