package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/coder/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/stockbook/internal/websocket"
)

// WatchNudges keeps a WebSocket open to the server and turns nudges into
// poll triggers. It reconnects with capped backoff until ctx is done.
func WatchNudges(ctx context.Context, url, token string, triggers chan<- struct{}, logger *slog.Logger) {
	newBackoff := func() retry.Backoff {
		return retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
	}
	backoff := newBackoff()

	for {
		connected, err := watchOnce(ctx, url, token, triggers)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = newBackoff()
		}
		wait, _ := backoff.Next()
		logger.Debug("nudge connection lost", "error", err, "retry_in", wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func watchOnce(ctx context.Context, url, token string, triggers chan<- struct{}) (bool, error) {
	conn, _, err := ws.Dial(ctx, url, &ws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return false, err
	}
	defer conn.CloseNow()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case websocket.TypeNotificationsCheck, websocket.TypeTransactionSettled:
			select {
			case triggers <- struct{}{}:
			default:
				// A check is already pending
			}
		}
	}
}
