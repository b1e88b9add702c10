package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/go-push-engine/internal/application/registry"
	"github.com/go-push-engine/internal/domain"
	"github.com/go-push-engine/internal/transport/http/middleware"
)

// DeviceTokenHandler handles device token registration and preferences.
type DeviceTokenHandler struct {
	svc registry.Service
}

func NewDeviceTokenHandler(svc registry.Service) *DeviceTokenHandler {
	return &DeviceTokenHandler{svc: svc}
}

// Register upserts the caller's token for one device.
func (h *DeviceTokenHandler) Register(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TenantID = claims.TenantID
	req.UserID = claims.UserID
	req.UserRole = claims.Role
	if req.DeviceID == "" {
		req.DeviceID = claims.DeviceID
	}

	token, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// Deactivate retires the caller's token for one device.
func (h *DeviceTokenHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	err := h.svc.Deactivate(r.Context(), claims.TenantID, claims.UserID, chi.URLParam(r, "deviceId"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "token deactivated"})
}

type preferencesRequest struct {
	Enabled       *bool                    `json:"notifications_enabled"`
	CategoryPrefs map[domain.Category]bool `json:"category_prefs"`
}

// UpdatePreferences replaces the per-category opt-outs and the global toggle
// on the caller's device token.
func (h *DeviceTokenHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	err := h.svc.UpdatePreferences(r.Context(), claims.TenantID, claims.UserID,
		chi.URLParam(r, "deviceId"), req.CategoryPrefs, enabled)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "preferences updated"})
}
