package handlers

import (
	"net/http"
	"strconv"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/security/validation"
	"github.com/financeflow/backend/src/services"
)

type TransactionHandler struct {
	reportService services.ReportService
}

func NewTransactionHandler(reportService services.ReportService) *TransactionHandler {
	return &TransactionHandler{reportService: reportService}
}

// HandleListTransactions pages through the user's transactions, newest first.
// Query parameters: limit, offset, account_id.
func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	filter := models.TransactionFilter{AccountID: q.Get("account_id")}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		sendJSONError(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		sendJSONError(w, "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}
	if filter.AccountID != "" {
		if err := validation.ValidateRequestToken(filter.AccountID, "account_id"); err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	txs, err := h.reportService.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list transactions", "error", err)
		sendJSONError(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
