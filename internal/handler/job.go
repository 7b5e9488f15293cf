package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/stockbook/internal/auth"
	"github.com/dukerupert/stockbook/internal/push"
)

type JobHandler struct {
	runner push.Runner
	logger *slog.Logger
}

// NewJobHandler creates the batch job handler. A nil runner means push is
// not configured and the job answers 503.
func NewJobHandler(runner push.Runner, logger *slog.Logger) *JobHandler {
	return &JobHandler{runner: runner, logger: logger}
}

// RunPush handles POST /api/jobs/push-notifications
//
// The batch runs detached from the request, so a trigger that disconnects
// mid-run does not cancel sends for candidates already claimed.
func (h *JobHandler) RunPush(w http.ResponseWriter, r *http.Request) {
	if !auth.IsJob(r.Context()) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	res, err := h.runner.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		h.logger.Error("push batch", "run_id", res.RunID, "error", err)
		writeError(w, http.StatusInternalServerError, "push batch failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
