package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukerupert/stockbook/internal/auth"
	"github.com/dukerupert/stockbook/internal/config"
	"github.com/dukerupert/stockbook/internal/database"
	"github.com/dukerupert/stockbook/internal/handler"
	"github.com/dukerupert/stockbook/internal/middleware"
	"github.com/dukerupert/stockbook/internal/notify"
	"github.com/dukerupert/stockbook/internal/push"
	"github.com/dukerupert/stockbook/internal/store"
	ws "github.com/dukerupert/stockbook/internal/websocket"
)

// Job endpoint limit per client IP.
const (
	jobRateLimit  = 10
	jobRateWindow = time.Minute
)

type Server struct {
	cfg           config.Config
	db            *sql.DB
	hub           *ws.Hub
	tokens        *auth.Tokens
	notificationH *handler.NotificationHandler
	transactionH  *handler.TransactionHandler
	pushH         *handler.PushHandler
	jobH          *handler.JobHandler
	pushStore     *store.PushStore
	dispatcher    *push.Dispatcher
	pushScheduler *push.Scheduler
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(cfg config.Config, db *sql.DB, logger *slog.Logger) *Server {
	xdb := database.X(db)
	hub := ws.NewHub(logger.With("component", "websocket"))

	txStore := store.NewTransactionStore(xdb)
	ledgerStore := store.NewLedgerStore(xdb)
	prefStore := store.NewPreferenceStore(xdb)
	pushSt := store.NewPushStore(db)

	notifyLogger := logger.With("component", "notify")
	engine := notify.NewEngine(
		notify.NewResolver(prefStore, cfg.Location()),
		notify.NewMatcher(txStore, notifyLogger),
		ledgerStore, time.Now, notifyLogger,
	)
	inApp := notify.NewInApp(engine, ledgerStore, time.Now)

	s := &Server{
		cfg:           cfg,
		db:            db,
		hub:           hub,
		tokens:        auth.NewTokens(cfg.JWTSecret),
		notificationH: handler.NewNotificationHandler(inApp, ledgerStore, prefStore, logger.With("component", "notification")),
		transactionH:  handler.NewTransactionHandler(txStore, hub, logger.With("component", "transaction")),
		pushStore:     pushSt,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}

	// Push notification service, dispatcher and optional scheduler
	var runner push.Runner
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushLogger := logger.With("component", "push")
		svc := push.NewService(push.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.VAPIDSubscriber,
			TTL:             cfg.PushTTL,
			SendTimeout:     cfg.PushSendTimeout,
		})
		s.dispatcher = push.NewDispatcher(engine, pushSt, svc, cfg.PushWorkers, pushLogger)
		s.pushH = handler.NewPushHandler(pushSt, svc, logger.With("component", "push_handler"))
		runner = s.dispatcher
		if cfg.PushInterval > 0 {
			s.pushScheduler = push.NewScheduler(s.dispatcher, hub, cfg.PushInterval, cfg.Location(), logger.With("component", "scheduler"))
		}
	} else {
		logger.Warn("VAPID keys not configured, push notifications disabled")
	}
	s.jobH = handler.NewJobHandler(runner, logger.With("component", "job"))

	return s
}

// Dispatcher returns the push batch runner, or nil when push is not configured.
func (s *Server) Dispatcher() *push.Dispatcher {
	return s.dispatcher
}

// PushScheduler returns the in-process push scheduler, or nil when disabled.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Batch job, authenticated by the shared job secret
	jobAuth := middleware.RequireJobSecret(middleware.JobSecret{
		Plain:      s.cfg.JobSecret,
		Hash:       s.cfg.JobSecretHash,
		AllowUnset: !s.cfg.IsProduction(),
	}, s.logger.With("component", "job_auth"))
	jobLimit := middleware.RateLimit(s.rateLimiter, "job", middleware.IPKey, jobRateLimit, jobRateWindow)
	outerMux.Handle("POST /api/jobs/push-notifications", jobLimit(jobAuth(http.HandlerFunc(s.jobH.RunPush))))

	// User routes, authenticated by bearer JWT
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	userAuth := middleware.RequireUser(s.tokens)
	outerMux.Handle("/api/", userAuth(protectedMux))
	outerMux.Handle("GET /ws", userAuth(ws.HandleWebSocket(s.hub, s.originPatterns(), s.logger.With("component", "websocket"))))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	version, err := database.SchemaVersion(r.Context(), s.db)
	if err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"schema_version": version,
		"push":           s.dispatcher != nil,
		"clients":        s.hub.ClientCount(),
	})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// In-app notifications
	dueLimit := middleware.RateLimit(s.rateLimiter, "due", middleware.UserKey, s.cfg.DueRateLimit, time.Minute)
	if s.cfg.DueRateLimit > 0 {
		mux.Handle("GET /api/notifications/due", dueLimit(http.HandlerFunc(s.notificationH.Due)))
	} else {
		mux.HandleFunc("GET /api/notifications/due", s.notificationH.Due)
	}
	mux.HandleFunc("POST /api/notifications/confirm", s.notificationH.Confirm)
	mux.HandleFunc("GET /api/notifications/history", s.notificationH.History)
	mux.HandleFunc("GET /api/notifications/preferences", s.notificationH.GetPreferences)
	mux.HandleFunc("PUT /api/notifications/preferences", s.notificationH.UpdatePreferences)

	// Settlement
	mux.HandleFunc("PATCH /api/transactions/{id}/settlement", s.transactionH.SetSettlement)

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.DeleteSubscription)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)
	}
}

// originPatterns allows browser WebSocket connections from the public base URL.
func (s *Server) originPatterns() []string {
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
