package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/providers"
	"github.com/financeflow/backend/src/security/validation"
	"github.com/financeflow/backend/src/services"
	"github.com/go-chi/chi/v5"
)

const maxInstitutionNameLength = 200

type IntegrationHandler struct {
	connectService services.ConnectService
	oauthState     string
}

func NewIntegrationHandler(connectService services.ConnectService, oauthState string) *IntegrationHandler {
	return &IntegrationHandler{connectService: connectService, oauthState: oauthState}
}

func (h *IntegrationHandler) HandleListIntegrations(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	creds, err := h.connectService.ListIntegrations(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list integrations", "error", err)
		sendJSONError(w, "Failed to list integrations", http.StatusInternalServerError)
		return
	}
	if creds == nil {
		creds = []models.Credential{}
	}
	writeJSON(w, http.StatusOK, creds)
}

// HandleDeleteIntegration disconnects a provider. Synced data is kept.
func (h *IntegrationHandler) HandleDeleteIntegration(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")
	if err := validation.ValidateRequestToken(id, "integration id"); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.connectService.Disconnect(r.Context(), userID, id)
	if errors.Is(err, services.ErrIntegrationNotFound) {
		sendJSONError(w, "Integration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to disconnect integration", "integrationID", id, "error", err)
		sendJSONError(w, "Failed to disconnect integration", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IntegrationHandler) HandleCreatePlaidLinkToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	link, err := h.connectService.CreatePlaidLinkToken(r.Context(), userID)
	if err != nil {
		h.sendConnectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

type plaidExchangeRequest struct {
	PublicToken     string `json:"public_token"`
	InstitutionName string `json:"institution_name"`
}

func (h *IntegrationHandler) HandleExchangePlaidToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req plaidExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateRequestToken(req.PublicToken, "public_token"); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	institution := validation.SanitizeLabel(req.InstitutionName, maxInstitutionNameLength)

	result, err := h.connectService.ExchangePlaidToken(r.Context(), userID, req.PublicToken, institution)
	if err != nil {
		h.sendConnectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// sendConnectError maps provider and service errors of the connect flows.
func (h *IntegrationHandler) sendConnectError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, models.ErrUnknownProvider):
		sendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrProviderNotConfigured):
		sendJSONError(w, "Provider is not available", http.StatusNotFound)
	case errors.Is(err, providers.ErrRejected), errors.Is(err, providers.ErrUnauthorized):
		log.Warn("Provider refused the connection", "error", err)
		sendJSONError(w, "The provider rejected the authorization. Please try connecting again.", http.StatusBadRequest)
	case errors.Is(err, providers.ErrTransient):
		log.Warn("Provider unavailable during connect", "error", err)
		sendJSONError(w, "The provider is temporarily unavailable", http.StatusBadGateway)
	default:
		log.Error("Failed to connect provider", "error", err)
		sendJSONError(w, "Failed to connect provider", http.StatusInternalServerError)
	}
}
