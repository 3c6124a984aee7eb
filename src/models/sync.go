package models

import "time"

// Reasons attached to a failed CredentialResult.
const (
	ReasonReauthRequired       = "reauth_required"
	ReasonProviderUnavailable  = "provider_unavailable"
	ReasonProviderRejected     = "provider_rejected"
	ReasonCredentialUnreadable = "credential_unreadable"
	ReasonStorageError         = "storage_error"
	ReasonUnsupportedProvider  = "unsupported_provider"
)

// CredentialResult is the outcome of syncing one credential.
type CredentialResult struct {
	CredentialID    string   `json:"credentialId"`
	Provider        Provider `json:"provider"`
	Success         bool     `json:"success"`
	Inserted        int      `json:"inserted"`
	Skipped         int      `json:"skipped"`
	Dropped         int      `json:"dropped"`
	Rejected        int      `json:"rejected"`
	WriteFailures   int      `json:"writeFailures,omitempty"`
	BalancesUpdated int      `json:"balancesUpdated"`
	Reason          string   `json:"reason,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// SyncReport aggregates every credential processed by one sync request.
type SyncReport struct {
	TransactionsSynced int                `json:"transactionsSynced"`
	Results            []CredentialResult `json:"results"`
	StartedAt          time.Time          `json:"startedAt"`
	FinishedAt         time.Time          `json:"finishedAt"`
}

// Failures returns the results that did not succeed, in processing order.
func (r *SyncReport) Failures() []CredentialResult {
	var failed []CredentialResult
	for _, res := range r.Results {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	return failed
}

// AllFailed is true when there was at least one credential and none succeeded.
func (r *SyncReport) AllFailed() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if res.Success {
			return false
		}
	}
	return true
}

// ReconnectRequired reports whether any failure needs the user to reconnect.
func (r *SyncReport) ReconnectRequired() bool {
	for _, res := range r.Results {
		if res.Reason == ReasonReauthRequired {
			return true
		}
	}
	return false
}
