package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/financeflow/backend/src/logger"
	"github.com/financeflow/backend/src/models"
	"github.com/financeflow/backend/src/security/validation"
	"github.com/go-chi/chi/v5"
)

func processorFromURL(r *http.Request) (models.Provider, error) {
	p, err := models.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		return "", err
	}
	if !p.IsProcessor() {
		return "", models.ErrUnknownProvider
	}
	return p, nil
}

// HandleAuthorize returns the processor's OAuth consent URL. The client
// redirects the user there and posts the returned code to HandleConnect.
func (h *IntegrationHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	provider, err := processorFromURL(r)
	if err != nil {
		sendJSONError(w, "Unknown processor", http.StatusBadRequest)
		return
	}

	authURL, err := h.connectService.ProcessorAuthorizeURL(provider, h.oauthState)
	if err != nil {
		h.sendConnectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": authURL, "state": h.oauthState})
}

type connectRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func (h *IntegrationHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	provider, err := processorFromURL(r)
	if err != nil {
		sendJSONError(w, "Unknown processor", http.StatusBadRequest)
		return
	}

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.State != h.oauthState {
		logger.FromContext(r.Context()).Warn("Invalid OAuth state on processor connect", "provider", provider)
		sendJSONError(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateRequestToken(req.Code, "code"); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.connectService.ConnectProcessor(r.Context(), userID, provider, req.Code)
	if err != nil {
		h.sendConnectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
