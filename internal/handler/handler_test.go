package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/stockbook/internal/auth"
	"github.com/dukerupert/stockbook/internal/database"
	"github.com/dukerupert/stockbook/internal/model"
	"github.com/dukerupert/stockbook/internal/notify"
	"github.com/dukerupert/stockbook/internal/push"
	"github.com/dukerupert/stockbook/internal/store"
	ws "github.com/dukerupert/stockbook/internal/websocket"
)

const testUser = "alice"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type testEnv struct {
	txs    *store.TransactionStore
	ledger *store.LedgerStore
	prefs  *store.PreferenceStore
	subs   *store.PushStore
	hub    *ws.Hub
	notifH *NotificationHandler
	txH    *TransactionHandler
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	xdb := database.X(db)

	now := func() time.Time { return time.Date(2025, 1, 17, 9, 0, 0, 0, time.UTC) }
	env := &testEnv{
		txs:    store.NewTransactionStore(xdb),
		ledger: store.NewLedgerStore(xdb),
		prefs:  store.NewPreferenceStore(xdb),
		subs:   store.NewPushStore(db),
		hub:    ws.NewHub(quiet),
	}
	engine := notify.NewEngine(
		notify.NewResolver(env.prefs, time.UTC),
		notify.NewMatcher(env.txs, quiet),
		env.ledger, now, quiet,
	)
	env.notifH = NewNotificationHandler(notify.NewInApp(engine, env.ledger, now), env.ledger, env.prefs, quiet)
	env.txH = NewTransactionHandler(env.txs, env.hub, quiet)
	return env
}

func (e *testEnv) addTx(t *testing.T, scheduled string) *model.Transaction {
	t.Helper()
	d, _ := time.Parse(model.DateLayout, scheduled)
	paid := false
	tx, err := e.txs.Create(context.Background(), model.Transaction{
		UserID:        testUser,
		Kind:          model.KindExpense,
		Amount:        decimal.RequireFromString("150.00"),
		Description:   "Supplier invoice",
		ScheduledDate: &d,
		IsPaid:        &paid,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func request(method, target string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			r = bytes.NewBufferString(s)
		} else {
			data, _ := json.Marshal(body)
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, target, r)
	return req.WithContext(auth.WithUser(req.Context(), testUser))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestDueClaimsOncePerDay(t *testing.T) {
	env := setupEnv(t)
	tx := env.addTx(t, "2025-01-20")

	rec := httptest.NewRecorder()
	env.notifH.Due(rec, request("GET", "/api/notifications/due", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	got := decode[[]map[string]any](t, rec)
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	c := got[0]
	if c["notification_type"] != "scheduled_3days" {
		t.Errorf("notification_type = %v", c["notification_type"])
	}
	if c["transaction_id"] != float64(tx.ID) {
		t.Errorf("transaction_id = %v, want %d", c["transaction_id"], tx.ID)
	}
	if c["amount"] != "150" {
		t.Errorf("amount = %v, want \"150\"", c["amount"])
	}
	if c["type"] != "expense" || c["day_offset"] != float64(3) || c["is_overdue"] != false {
		t.Errorf("unexpected candidate %v", c)
	}

	rec = httptest.NewRecorder()
	env.notifH.Due(rec, request("GET", "/api/notifications/due", nil))
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Errorf("second call body = %s, want []", body)
	}
}

func TestConfirm(t *testing.T) {
	env := setupEnv(t)
	tx := env.addTx(t, "2025-01-17")

	body := map[string]any{
		"transaction_id":    tx.ID,
		"notification_type": "scheduled_day",
		"scheduled_date":    "2025-01-17",
	}
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		env.notifH.Confirm(rec, request("POST", "/api/notifications/confirm", body))
		if rec.Code != http.StatusOK {
			t.Fatalf("confirm %d: status = %d, body %s", i+1, rec.Code, rec.Body.String())
		}
	}

	entries, _ := env.ledger.ListRecent(context.Background(), testUser, 10)
	if len(entries) != 1 || entries[0].ConfirmedAt == nil {
		t.Errorf("expected one confirmed ledger entry, got %+v", entries)
	}

	// A confirmed entry blocks the candidate from being claimed again.
	rec := httptest.NewRecorder()
	env.notifH.Due(rec, request("GET", "/api/notifications/due", nil))
	if got := decode[[]map[string]any](t, rec); len(got) != 0 {
		t.Errorf("expected no due candidates after confirm, got %v", got)
	}
}

func TestConfirmValidation(t *testing.T) {
	env := setupEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{"empty body", ""},
		{"bad json", "{"},
		{"missing id", map[string]any{"notification_type": "scheduled_day", "scheduled_date": "2025-01-17"}},
		{"unknown type", map[string]any{"transaction_id": 1, "notification_type": "scheduled_2days", "scheduled_date": "2025-01-17"}},
		{"bad date", map[string]any{"transaction_id": 1, "notification_type": "scheduled_day", "scheduled_date": "17/01/2025"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.notifH.Confirm(rec, request("POST", "/api/notifications/confirm", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHistory(t *testing.T) {
	env := setupEnv(t)
	env.addTx(t, "2025-01-17")
	env.addTx(t, "2025-01-18")

	env.notifH.Due(httptest.NewRecorder(), request("GET", "/api/notifications/due", nil))

	rec := httptest.NewRecorder()
	env.notifH.History(rec, request("GET", "/api/notifications/history?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[[]map[string]any](t, rec)
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if got[0]["channel"] != "in_app" {
		t.Errorf("channel = %v, want in_app", got[0]["channel"])
	}

	rec = httptest.NewRecorder()
	env.notifH.History(rec, request("GET", "/api/notifications/history?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	env := setupEnv(t)

	rec := httptest.NewRecorder()
	env.notifH.GetPreferences(rec, request("GET", "/api/notifications/preferences", nil))
	defaults := decode[model.NotificationPreference](t, rec)
	if !defaults.Enabled || !defaults.Days7 || !defaults.Overdue {
		t.Errorf("expected all-enabled defaults, got %+v", defaults)
	}

	rec = httptest.NewRecorder()
	env.notifH.UpdatePreferences(rec, request("PUT", "/api/notifications/preferences",
		`{"notify_3days": false, "timezone": "America/Denver"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	saved := decode[model.NotificationPreference](t, rec)
	if saved.Days3 {
		t.Error("notify_3days should be off")
	}
	if !saved.Days7 {
		t.Error("omitted fields should keep their value")
	}
	if saved.Timezone != "America/Denver" {
		t.Errorf("timezone = %q", saved.Timezone)
	}

	rec = httptest.NewRecorder()
	env.notifH.UpdatePreferences(rec, request("PUT", "/api/notifications/preferences", `{"timezone": "Mars/Olympus"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad timezone status = %d, want 400", rec.Code)
	}
}

func TestMasterSwitchOffSuppressesDue(t *testing.T) {
	env := setupEnv(t)
	env.addTx(t, "2025-01-17")

	env.notifH.UpdatePreferences(httptest.NewRecorder(), request("PUT", "/api/notifications/preferences",
		`{"notifications_enabled": false}`))

	rec := httptest.NewRecorder()
	env.notifH.Due(rec, request("GET", "/api/notifications/due", nil))
	if got := decode[[]map[string]any](t, rec); len(got) != 0 {
		t.Errorf("expected nothing due with master switch off, got %v", got)
	}
}

func TestSetSettlement(t *testing.T) {
	env := setupEnv(t)
	tx := env.addTx(t, "2025-01-16")

	rec := httptest.NewRecorder()
	req := request("PATCH", "/api/transactions/1/settlement", `{"is_paid": true}`)
	req.SetPathValue("id", "1")
	env.txH.SetSettlement(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decode[model.Transaction](t, rec)
	if got.ID != tx.ID || got.IsPaid == nil || !*got.IsPaid {
		t.Errorf("unexpected transaction %+v", got)
	}

	rec = httptest.NewRecorder()
	env.notifH.Due(rec, request("GET", "/api/notifications/due", nil))
	if due := decode[[]map[string]any](t, rec); len(due) != 0 {
		t.Errorf("paid transaction should not be due, got %v", due)
	}
}

func TestSetSettlementErrors(t *testing.T) {
	env := setupEnv(t)

	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{"bad id", "abc", `{"is_paid": true}`, http.StatusBadRequest},
		{"missing field", "1", `{}`, http.StatusBadRequest},
		{"not found", "999", `{"is_paid": true}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("PATCH", "/api/transactions/"+tt.id+"/settlement", tt.body)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()
			env.txH.SetSettlement(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

type fakeSender struct {
	errs map[string]error
	sent int
}

func (f *fakeSender) Send(_ context.Context, sub *model.PushSubscription, _ push.Payload) error {
	if err := f.errs[sub.Endpoint]; err != nil {
		return err
	}
	f.sent++
	return nil
}

func (f *fakeSender) VAPIDPublicKey() string { return "BPublicKey" }

func TestPushSubscribeLifecycle(t *testing.T) {
	env := setupEnv(t)
	sender := &fakeSender{errs: map[string]error{"https://push.example/dead": push.ErrExpired}}
	h := NewPushHandler(env.subs, sender, quiet)

	for _, endpoint := range []string{"https://push.example/live", "https://push.example/dead"} {
		rec := httptest.NewRecorder()
		h.Subscribe(rec, request("POST", "/api/push/subscribe", map[string]string{
			"endpoint": endpoint, "p256dh": "key", "auth": "secret", "device_name": "Laptop",
		}))
		if rec.Code != http.StatusCreated {
			t.Fatalf("subscribe status = %d, body %s", rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	h.Subscribe(rec, request("POST", "/api/push/subscribe", map[string]string{"endpoint": "not a url", "p256dh": "k", "auth": "a"}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid subscribe status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.TestNotification(rec, request("POST", "/api/push/test", nil))
	result := decode[map[string]int](t, rec)
	if result["sent"] != 1 || result["pruned"] != 1 {
		t.Errorf("test push result = %v, want sent=1 pruned=1", result)
	}

	rec = httptest.NewRecorder()
	h.ListSubscriptions(rec, request("GET", "/api/push/subscriptions", nil))
	subs := decode[[]model.PushSubscription](t, rec)
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example/live" {
		t.Fatalf("subscriptions = %+v, want only the live endpoint", subs)
	}

	rec = httptest.NewRecorder()
	h.Unsubscribe(rec, request("POST", "/api/push/unsubscribe", map[string]string{"endpoint": "https://push.example/live"}))
	if got := decode[map[string]bool](t, rec); !got["removed"] {
		t.Errorf("unsubscribe result = %v", got)
	}

	rec = httptest.NewRecorder()
	h.ListSubscriptions(rec, request("GET", "/api/push/subscriptions", nil))
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Errorf("list after unsubscribe = %s, want []", body)
	}

	rec = httptest.NewRecorder()
	h.GetVAPIDKey(rec, request("GET", "/api/push/vapid-key", nil))
	if got := decode[map[string]string](t, rec); got["public_key"] != "BPublicKey" {
		t.Errorf("public_key = %q", got["public_key"])
	}
}

type stubRunner struct {
	res push.Result
	err error
}

func (s stubRunner) Run(context.Context) (push.Result, error) { return s.res, s.err }

func jobRequest(ctx context.Context) *http.Request {
	req := httptest.NewRequest("POST", "/api/jobs/push-notifications", nil)
	return req.WithContext(auth.WithIdentity(ctx, auth.Identity{Job: true}))
}

func TestRunPush(t *testing.T) {
	h := NewJobHandler(stubRunner{res: push.Result{RunID: "run-1", Users: 2, Claimed: 3, Sent: 4}}, quiet)

	rec := httptest.NewRecorder()
	h.RunPush(rec, jobRequest(context.Background()))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["sent"] != float64(4) || got["run_id"] != "run-1" {
		t.Errorf("unexpected result %v", got)
	}
}

func TestRunPushNotConfigured(t *testing.T) {
	h := NewJobHandler(nil, quiet)

	rec := httptest.NewRecorder()
	h.RunPush(rec, jobRequest(context.Background()))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRunPushRejectsNonJobCaller(t *testing.T) {
	h := NewJobHandler(stubRunner{res: push.Result{RunID: "run-1"}}, quiet)

	for name, req := range map[string]*http.Request{
		"anonymous": httptest.NewRequest("POST", "/api/jobs/push-notifications", nil),
		"user": httptest.NewRequest("POST", "/api/jobs/push-notifications", nil).
			WithContext(auth.WithUser(context.Background(), "alice")),
	} {
		rec := httptest.NewRecorder()
		h.RunPush(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}

// ctxRunner fails if the batch context is already cancelled when it runs.
type ctxRunner struct{}

func (ctxRunner) Run(ctx context.Context) (push.Result, error) {
	if err := ctx.Err(); err != nil {
		return push.Result{}, err
	}
	return push.Result{RunID: "run-1"}, nil
}

func TestRunPushOutlivesDisconnectedTrigger(t *testing.T) {
	h := NewJobHandler(ctxRunner{}, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.RunPush(rec, jobRequest(ctx))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for a detached batch", rec.Code)
	}
}
