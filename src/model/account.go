package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/financeflow/backend/src/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, user_id, name, type, institution, external_account_id, balance, currency, created_at, updated_at`

// UpsertExternalAccount creates the account for a provider account id, or refreshes
// the name and institution of an existing one. The balance of an existing account
// is left to the sync path.
func UpsertExternalAccount(ctx context.Context, q Querier, a *models.Account) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Currency == "" {
		a.Currency = "USD"
	}

	query := `
	INSERT INTO accounts (id, user_id, name, type, institution, external_account_id, balance, currency, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, external_account_id) DO UPDATE SET
		name = excluded.name,
		institution = excluded.institution,
		updated_at = excluded.updated_at
	RETURNING id, balance, currency`

	newID := a.ID
	var balance string
	err := q.QueryRowContext(ctx, query,
		a.ID, a.UserID, a.Name, string(a.Type), nullString(a.Institution), nullString(a.ExternalAccountID),
		a.Balance.String(), a.Currency, now, now,
	).Scan(&a.ID, &balance, &a.Currency)
	if err != nil {
		return fmt.Errorf("upsert account %s for user %s: %w", a.ExternalAccountID, a.UserID, err)
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return fmt.Errorf("account %s has invalid balance %q: %w", a.ID, balance, err)
	}
	if a.ID == newID {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return nil
}

// GetAccountsByUser returns all of the user's accounts, oldest first.
func GetAccountsByUser(ctx context.Context, q Querier, userID string) ([]models.Account, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		var accType, balance string
		var institution, externalID sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &accType, &institution, &externalID,
			&balance, &a.Currency, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Type = models.AccountType(accType)
		a.Institution = institution.String
		a.ExternalAccountID = externalID.String
		if a.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("account %s has invalid balance %q: %w", a.ID, balance, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccountBalance replaces the stored balance and its currency with the
// provider reading. An empty currency keeps the stored one.
func UpdateAccountBalance(ctx context.Context, q Querier, userID, accountID string, balance decimal.Decimal, currency string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, currency = COALESCE(NULLIF(?, ''), currency), updated_at = ?
		WHERE user_id = ? AND id = ?`,
		balance.String(), currency, time.Now().UTC(), userID, accountID)
	if err != nil {
		return fmt.Errorf("update balance of account %s: %w", accountID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
