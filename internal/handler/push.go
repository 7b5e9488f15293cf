package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/stockbook/internal/auth"
	"github.com/dukerupert/stockbook/internal/model"
	"github.com/dukerupert/stockbook/internal/push"
	"github.com/dukerupert/stockbook/internal/store"
)

// KeySender is a push sender that can also publish its VAPID public key.
type KeySender interface {
	push.Sender
	VAPIDPublicKey() string
}

type PushHandler struct {
	pushStore *store.PushStore
	service   KeySender
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc KeySender, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint" validate:"required,url"`
	P256dh     string `json:"p256dh" validate:"required"`
	Auth       string `json:"auth" validate:"required"`
	DeviceName string `json:"device_name" validate:"max=100"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req subscribeRequest
	if err := decodeValid(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.pushStore.Register(r.Context(), userID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("register push subscription", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// Unsubscribe handles POST /api/push/unsubscribe. Removing an endpoint that
// is not registered still succeeds.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req unsubscribeRequest
	if err := decodeValid(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	removed, err := h.pushStore.Revoke(r.Context(), userID, req.Endpoint)
	if err != nil {
		h.logger.Error("revoke push subscription", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// DeleteSubscription handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.pushStore.DeleteSubscription(r.Context(), id, userID); err != nil {
		h.logger.Error("delete push subscription", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	subs, err := h.pushStore.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// TestNotification handles POST /api/push/test. It bypasses the ledger and
// prunes endpoints the provider reports as gone.
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	subs, err := h.pushStore.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	sent, pruned := 0, 0
	for i := range subs {
		switch err := h.service.Send(r.Context(), &subs[i], push.TestPayload()); {
		case err == nil:
			sent++
		case isExpired(err):
			if h.prune(r.Context(), subs[i]) {
				pruned++
			}
		default:
			h.logger.Warn("test push send", "subscription_id", subs[i].ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"sent": sent, "pruned": pruned})
}

func (h *PushHandler) prune(ctx context.Context, sub model.PushSubscription) bool {
	if _, err := h.pushStore.PruneDead(ctx, sub.Endpoint); err != nil {
		h.logger.Error("prune dead subscription", "subscription_id", sub.ID, "error", err)
		return false
	}
	return true
}

func isExpired(err error) bool {
	return errors.Is(err, push.ErrExpired)
}
