package handlers

import (
	"errors"
	"net/http"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/services"
)

type SyncHandler struct {
	syncService services.SyncService
}

func NewSyncHandler(syncService services.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

type syncResponse struct {
	Success            bool                      `json:"success"`
	Error              string                    `json:"error,omitempty"`
	TransactionsSynced int                       `json:"transactionsSynced"`
	Failures           []models.CredentialResult `json:"failures,omitempty"`
	ReconnectRequired  *bool                     `json:"reconnectRequired,omitempty"`
}

// HandleSync runs a sync for the authenticated user. The optional "provider"
// query parameter narrows it to a provider kind or a single provider.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	log := logger.FromContext(r.Context())

	filter, err := models.ParseProviderFilter(r.URL.Query().Get("provider"))
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.syncService.Sync(r.Context(), userID, filter)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrCredentialNotFound):
		sendJSONError(w, "No active "+filter.Name+" connection. Connect the provider first.", http.StatusBadRequest)
		return
	case errors.Is(err, services.ErrMissingUser):
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	default:
		log.Error("Sync request failed", "filter", filter.Name, "error", err)
		sendJSONError(w, "Failed to read connected providers", http.StatusInternalServerError)
		return
	}

	resp := syncResponse{
		Success:            true,
		TransactionsSynced: report.TransactionsSynced,
		Failures:           report.Failures(),
	}
	if report.AllFailed() {
		reconnect := report.ReconnectRequired()
		resp.Success = false
		resp.Error = "Sync failed for every connected provider"
		resp.ReconnectRequired = &reconnect
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
