package handlers

import (
	"net/http"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/services"
)

type AccountHandler struct {
	reportService services.ReportService
}

func NewAccountHandler(reportService services.ReportService) *AccountHandler {
	return &AccountHandler{reportService: reportService}
}

func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	accounts, err := h.reportService.ListAccounts(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list accounts", "error", err)
		sendJSONError(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}
