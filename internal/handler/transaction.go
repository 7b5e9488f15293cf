package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/stockbook/internal/auth"
	"github.com/dukerupert/stockbook/internal/model"
	"github.com/dukerupert/stockbook/internal/store"
	ws "github.com/dukerupert/stockbook/internal/websocket"
)

// Settler writes the one transaction field the engine owns.
type Settler interface {
	SetPaid(ctx context.Context, userID string, id int64, paid bool) error
	GetByID(ctx context.Context, userID string, id int64) (*model.Transaction, error)
}

type TransactionHandler struct {
	txs    Settler
	hub    *ws.Hub
	logger *slog.Logger
}

func NewTransactionHandler(txs Settler, hub *ws.Hub, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{txs: txs, hub: hub, logger: logger}
}

type settlementRequest struct {
	IsPaid *bool `json:"is_paid" validate:"required"`
}

// SetSettlement handles PATCH /api/transactions/{id}/settlement. Marking a
// transaction paid removes it from every future candidate set.
func (h *TransactionHandler) SetSettlement(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req settlementRequest
	if err := decodeValid(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.txs.SetPaid(r.Context(), userID, id, *req.IsPaid)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		h.logger.Error("set settlement", "user_id", userID, "transaction_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update transaction")
		return
	}

	tx, err := h.txs.GetByID(r.Context(), userID, id)
	if err != nil {
		h.logger.Error("reload transaction", "user_id", userID, "transaction_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load transaction")
		return
	}

	h.hub.Notify(userID, ws.TransactionSettled(id, *req.IsPaid))
	writeJSON(w, http.StatusOK, tx)
}
