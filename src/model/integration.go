package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/financeflow/backend/src/models"
	"github.com/google/uuid"
)

const integrationColumns = `id, user_id, provider, access_token, metadata, last_synced_at, is_active, deactivated_at, created_at, updated_at`

// UpsertIntegration stores a credential. Connecting a provider the user already
// connected replaces the token and metadata and reactivates the row.
func UpsertIntegration(ctx context.Context, q Querier, c *models.Credential) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	metadata, err := encodeMetadata(c.Metadata)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO integrations (id, user_id, provider, access_token, metadata, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(user_id, provider) DO UPDATE SET
		access_token = excluded.access_token,
		metadata = excluded.metadata,
		is_active = 1,
		deactivated_at = NULL,
		updated_at = excluded.updated_at
	RETURNING id`

	newID := c.ID
	err = q.QueryRowContext(ctx, query, c.ID, c.UserID, string(c.Provider), c.AccessToken, metadata, now, now).
		Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upsert integration %s for user %s: %w", c.Provider, c.UserID, err)
	}
	if c.ID == newID {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.IsActive = true
	c.DeactivatedAt = nil
	return nil
}

// GetActiveIntegrations returns the user's active credentials for the given providers.
func GetActiveIntegrations(ctx context.Context, q Querier, userID string, providers []models.Provider) ([]models.Credential, error) {
	if len(providers) == 0 {
		return []models.Credential{}, nil
	}
	args := make([]any, 0, len(providers)+1)
	args = append(args, userID)
	for _, p := range providers {
		args = append(args, string(p))
	}

	query := `SELECT ` + integrationColumns + ` FROM integrations
	WHERE user_id = ? AND is_active = 1 AND provider IN (?` + strings.Repeat(",?", len(providers)-1) + `)
	ORDER BY created_at, id`
	return queryIntegrations(ctx, q, query, args...)
}

// ListIntegrationsByUser returns every credential of the user, inactive ones included.
func ListIntegrationsByUser(ctx context.Context, q Querier, userID string) ([]models.Credential, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = ? ORDER BY created_at, id`
	return queryIntegrations(ctx, q, query, userID)
}

func GetIntegrationByID(ctx context.Context, q Querier, userID, id string) (*models.Credential, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = ? AND id = ?`
	creds, err := queryIntegrations(ctx, q, query, userID, id)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, ErrNotFound
	}
	return &creds[0], nil
}

// DeactivateIntegration soft-deletes a credential. Accounts and transactions are kept.
func DeactivateIntegration(ctx context.Context, q Querier, userID, id string, at time.Time) error {
	at = at.UTC()
	res, err := q.ExecContext(ctx,
		`UPDATE integrations SET is_active = 0, deactivated_at = ?, updated_at = ? WHERE user_id = ? AND id = ? AND is_active = 1`,
		at, at, userID, id)
	if err != nil {
		return fmt.Errorf("deactivate integration %s: %w", id, err)
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

func UpdateIntegrationLastSynced(ctx context.Context, q Querier, id string, at time.Time) error {
	at = at.UTC()
	_, err := q.ExecContext(ctx, `UPDATE integrations SET last_synced_at = ?, updated_at = ? WHERE id = ?`, at, at, id)
	if err != nil {
		return fmt.Errorf("update last_synced_at for integration %s: %w", id, err)
	}
	return nil
}

// PurgeInactiveIntegrations hard-deletes credentials deactivated before cutoff.
func PurgeInactiveIntegrations(ctx context.Context, q Querier, cutoff time.Time) (int64, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM integrations WHERE is_active = 0 AND deactivated_at IS NOT NULL AND deactivated_at < ?`,
		cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge inactive integrations: %w", err)
	}
	return res.RowsAffected()
}

func queryIntegrations(ctx context.Context, q Querier, query string, args ...any) ([]models.Credential, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creds := []models.Credential{}
	for rows.Next() {
		var c models.Credential
		var provider, metadata string
		var lastSynced, deactivatedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &provider, &c.AccessToken, &metadata,
			&lastSynced, &c.IsActive, &deactivatedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Provider = models.Provider(provider)
		if c.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, fmt.Errorf("integration %s: %w", c.ID, err)
		}
		if lastSynced.Valid {
			t := lastSynced.Time
			c.LastSyncedAt = &t
		}
		if deactivatedAt.Valid {
			t := deactivatedAt.Time
			c.DeactivatedAt = &t
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode integration metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(raw string) (map[string]string, error) {
	m := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode integration metadata: %w", err)
	}
	return m, nil
}
