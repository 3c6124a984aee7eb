package handlers

import (
	"net/http"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/services"
)

type AnalyticsHandler struct {
	reportService services.ReportService
}

func NewAnalyticsHandler(reportService services.ReportService) *AnalyticsHandler {
	return &AnalyticsHandler{reportService: reportService}
}

func (h *AnalyticsHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	summary, err := h.reportService.GetDashboardSummary(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to build dashboard summary", "error", err)
		sendJSONError(w, "Failed to build dashboard summary", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
