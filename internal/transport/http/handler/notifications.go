package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/go-push-engine/internal/application/broadcast"
	"github.com/go-push-engine/internal/application/dispatch"
	"github.com/go-push-engine/internal/application/notification"
	"github.com/go-push-engine/internal/application/scheduler"
	"github.com/go-push-engine/internal/application/template"
	"github.com/go-push-engine/internal/domain"
	"github.com/go-push-engine/internal/transport/http/middleware"
)

// NotificationHandler handles notification creation, dispatch, interaction,
// and read-model endpoints.
type NotificationHandler struct {
	notifications notification.Service
	dispatcher    dispatch.Service
	broadcasts    broadcast.Service
	templates     *template.Resolver
	schedules     scheduler.Service
}

func NewNotificationHandler(
	notifications notification.Service,
	dispatcher dispatch.Service,
	broadcasts broadcast.Service,
	templates *template.Resolver,
	schedules scheduler.Service,
) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		dispatcher:    dispatcher,
		broadcasts:    broadcasts,
		templates:     templates,
		schedules:     schedules,
	}
}

// Create creates a record and dispatches it immediately.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TenantID = claims.TenantID
	req.CreatedBy = claims.UserID
	req.ScheduledAt = nil

	n, err := h.notifications.Create(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	outcome, err := h.dispatcher.Dispatch(r.Context(), claims.TenantID, n.NotificationID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

type templateRequest struct {
	EventType  string            `json:"event_type"`
	UserID     string            `json:"user_id"`
	Recipients []string          `json:"recipients,omitempty"`
	Locale     string            `json:"locale,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}

// CreateFromTemplate resolves the event type against the template catalogue,
// then creates and dispatches the rendered notification.
func (h *NotificationHandler) CreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resolved, err := h.templates.Resolve(req.EventType, req.Locale, req.Variables)
	if err != nil {
		httpError(w, err)
		return
	}

	n, err := h.notifications.Create(r.Context(), domain.CreateNotificationRequest{
		TenantID:   claims.TenantID,
		UserID:     req.UserID,
		Recipients: req.Recipients,
		Type:       req.EventType,
		Category:   resolved.Category,
		Priority:   resolved.Priority,
		Title:      resolved.Title,
		Body:       resolved.Body,
		ActionURL:  resolved.ActionURL,
		Data:       req.Data,
		CreatedBy:  claims.UserID,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	outcome, err := h.dispatcher.Dispatch(r.Context(), claims.TenantID, n.NotificationID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

// Schedule creates a record for later pickup by the scheduler.
func (h *NotificationHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScheduledAt == nil {
		writeError(w, http.StatusBadRequest, "scheduled_at is required")
		return
	}
	req.TenantID = claims.TenantID
	req.CreatedBy = claims.UserID

	n, err := h.notifications.Create(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// Broadcast fans a notification out to the matched audience. Admin only.
func (h *NotificationHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TenantID = claims.TenantID
	req.CreatedBy = claims.UserID

	result, err := h.broadcasts.Broadcast(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// List returns the caller's notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q := domain.ListNotificationsQuery{
		Category: domain.Category(r.URL.Query().Get("category")),
		Cursor:   r.URL.Query().Get("cursor"),
	}
	if v := r.URL.Query().Get("unread_only"); v != "" {
		q.UnreadOnly, _ = strconv.ParseBool(v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}

	items, next, err := h.notifications.List(r.Context(), claims.TenantID, claims.UserID, q)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PageEnvelope{Data: items, NextCursor: next})
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.notifications.Get(r.Context(), claims.TenantID, claims.UserID, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// MarkRead records a read interaction. Idempotent.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.interaction(w, r, domain.InteractionRead)
}

// Click records a click interaction. Clicks accumulate.
func (h *NotificationHandler) Click(w http.ResponseWriter, r *http.Request) {
	h.interaction(w, r, domain.InteractionClick)
}

func (h *NotificationHandler) interaction(w http.ResponseWriter, r *http.Request, kind domain.InteractionKind) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.notifications.RecordInteraction(r.Context(), claims.TenantID, claims.UserID, chi.URLParam(r, "id"), kind); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: string(kind) + " recorded"})
}

// MarkDelivered records the provider's delivery confirmation.
func (h *NotificationHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.notifications.MarkDelivered(r.Context(), claims.TenantID, chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "delivery recorded"})
}

// Cancel retires a scheduled notification before the scheduler picks it up.
func (h *NotificationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.schedules.Cancel(r.Context(), claims.TenantID, chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "notification cancelled"})
}
