package models

import "time"

// Credential is a user's stored connection to one provider.
// AccessToken holds the sealed token as stored; it is never serialized.
type Credential struct {
	ID            string            `json:"id"`
	UserID        string            `json:"-"`
	Provider      Provider          `json:"provider"`
	AccessToken   string            `json:"-"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	LastSyncedAt  *time.Time        `json:"last_synced_at,omitempty"`
	IsActive      bool              `json:"is_active"`
	DeactivatedAt *time.Time        `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Metadata keys written at connect time.
const (
	MetadataItemID        = "item_id"
	MetadataInstitutionID = "institution_id"
	MetadataAccountID     = "account_id"
)
