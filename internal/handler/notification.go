package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/stockbook/internal/auth"
	"github.com/dukerupert/stockbook/internal/model"
	"github.com/dukerupert/stockbook/internal/notify"
)

// History reads recent ledger rows.
type History interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]model.NotificationLogEntry, error)
}

// Preferences reads and writes the per-user preference row.
type Preferences interface {
	Get(ctx context.Context, userID string) (*model.NotificationPreference, error)
	Upsert(ctx context.Context, p model.NotificationPreference) error
}

type NotificationHandler struct {
	inApp   *notify.InApp
	history History
	prefs   Preferences
	logger  *slog.Logger
}

func NewNotificationHandler(inApp *notify.InApp, history History, prefs Preferences, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{inApp: inApp, history: history, prefs: prefs, logger: logger}
}

// Due handles GET /api/notifications/due. Everything returned is claimed.
func (h *NotificationHandler) Due(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	candidates, err := h.inApp.ListDue(r.Context(), userID)
	if err != nil {
		h.logger.Error("list due notifications", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

type confirmRequest struct {
	TransactionID    int64  `json:"transaction_id" validate:"required,gt=0"`
	NotificationType string `json:"notification_type" validate:"required"`
	ScheduledDate    string `json:"scheduled_date" validate:"required"`
}

// Confirm handles POST /api/notifications/confirm
func (h *NotificationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req confirmRequest
	if err := decodeValid(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.inApp.Confirm(r.Context(), userID, notify.Confirmation{
		TransactionID:    req.TransactionID,
		NotificationType: model.NotificationType(req.NotificationType),
		ScheduledDate:    req.ScheduledDate,
	})
	if errors.Is(err, notify.ErrInvalidConfirmation) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("confirm notification", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to confirm notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"confirmed": true})
}

// History handles GET /api/notifications/history?limit=N
func (h *NotificationHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 200)
	}

	entries, err := h.history.ListRecent(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("list notification history", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if entries == nil {
		entries = []model.NotificationLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetPreferences handles GET /api/notifications/preferences
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	p, err := h.loadPreferences(r.Context(), userID)
	if err != nil {
		h.logger.Error("get notification preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get preferences")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updatePreferencesRequest struct {
	Enabled          *bool   `json:"notifications_enabled"`
	FinancialEnabled *bool   `json:"notifications_financial_enabled"`
	Days7            *bool   `json:"notify_7days"`
	Days3            *bool   `json:"notify_3days"`
	Days1            *bool   `json:"notify_1day"`
	SameDay          *bool   `json:"notify_day"`
	Overdue          *bool   `json:"notify_overdue"`
	Timezone         *string `json:"timezone"`
}

// UpdatePreferences handles PUT /api/notifications/preferences. Omitted
// fields keep their current value.
func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req updatePreferencesRequest
	if err := decodeValid(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// An empty timezone clears the override.
	if req.Timezone != nil && *req.Timezone != "" {
		if err := validate.Var(*req.Timezone, "timezone"); err != nil {
			writeError(w, http.StatusBadRequest, "timezone must be an IANA zone name")
			return
		}
	}

	p, err := h.loadPreferences(r.Context(), userID)
	if err != nil {
		h.logger.Error("get notification preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update preferences")
		return
	}

	apply := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&p.Enabled, req.Enabled)
	apply(&p.FinancialEnabled, req.FinancialEnabled)
	apply(&p.Days7, req.Days7)
	apply(&p.Days3, req.Days3)
	apply(&p.Days1, req.Days1)
	apply(&p.SameDay, req.SameDay)
	apply(&p.Overdue, req.Overdue)
	if req.Timezone != nil {
		p.Timezone = *req.Timezone
	}

	if err := h.prefs.Upsert(r.Context(), p); err != nil {
		h.logger.Error("upsert notification preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update preferences")
		return
	}

	saved, err := h.loadPreferences(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusOK, p)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *NotificationHandler) loadPreferences(ctx context.Context, userID string) (model.NotificationPreference, error) {
	p, err := h.prefs.Get(ctx, userID)
	if err != nil {
		return model.NotificationPreference{}, err
	}
	if p == nil {
		return model.DefaultPreference(userID), nil
	}
	return *p, nil
}
