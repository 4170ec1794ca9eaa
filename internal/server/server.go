// Package server собирает HTTP API: маршруты chi, цепочку middleware и сам http.Server.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/features/accounts"
	"serotonyl.ru/waste-rewards/internal/features/admin"
	"serotonyl.ru/waste-rewards/internal/features/ledger"
	"serotonyl.ru/waste-rewards/internal/features/notifications"
	"serotonyl.ru/waste-rewards/internal/features/reports"
	"serotonyl.ru/waste-rewards/internal/httpx"
	"serotonyl.ru/waste-rewards/internal/server/middleware"
	"serotonyl.ru/waste-rewards/internal/session"
)

// Pinger — проверка доступности БД для /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers — обработчики всех фич.
type Handlers struct {
	Accounts      *accounts.Handler
	Admin         *admin.Handler
	Ledger        *ledger.Handler
	Reports       *reports.Handler
	Notifications *notifications.Handler
}

// Options — настройки HTTP-слоя.
type Options struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// Server — HTTP-сервер API.
type Server struct {
	http    *http.Server
	limiter *middleware.RateLimiter
}

// New создаёт сервер. Лимитер принадлежит серверу и останавливается в Shutdown.
func New(opts Options, h Handlers, sessions *session.Manager, limiter *middleware.RateLimiter, db Pinger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(opts, h, sessions, limiter, db),
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
		},
		limiter: limiter,
	}
}

// NewRouter собирает маршруты.
func NewRouter(opts Options, h Handlers, sessions *session.Manager, limiter *middleware.RateLimiter, db Pinger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowedHeaders:   []string{"Authorization", "Content-Type", accounts.ServiceKeyHeader},
		AllowCredentials: true,
	}).Handler)
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}

	r.Get("/healthz", health(db))

	r.Route("/api", func(r chi.Router) {
		// Публичные маршруты: лимит по IP
		r.Group(func(r chi.Router) {
			r.Use(limiter.Handler)
			r.Post("/session", h.Accounts.SignIn)
			r.Post("/admin/session", h.Admin.Login)
			r.Get("/leaderboard", h.Ledger.Leaderboard)
			r.Get("/reports/recent", h.Reports.Recent)
		})

		// Пользовательские маршруты: лимит по пользователю
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(sessions))
			r.Use(middleware.RequireUser)
			r.Use(limiter.Handler)

			r.Get("/me", h.Accounts.Me)
			r.Put("/me/telegram", h.Accounts.LinkTelegram)

			r.Get("/wallet", h.Ledger.GetWallet)
			r.Post("/wallet/redeem-all", h.Ledger.RedeemAll)
			r.Get("/rewards", h.Ledger.ListRewards)
			r.Post("/rewards/{id}/redeem", h.Ledger.Redeem)
			r.Get("/transactions", h.Ledger.ListTransactions)

			r.Post("/reports", h.Reports.Create)
			r.Get("/tasks", h.Reports.ListTasks)
			r.Post("/tasks/{id}/claim", h.Reports.Claim)
			r.Post("/tasks/{id}/complete", h.Reports.Complete)
			r.Post("/tasks/{id}/verify", h.Reports.Verify)
			r.Get("/collections", h.Reports.Collections)

			r.Get("/notifications", h.Notifications.Unread)
			r.Post("/notifications/{id}/read", h.Notifications.MarkRead)
		})

		// Админка
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(sessions))
			r.Use(middleware.RequireAdmin)

			r.Get("/admin/offers", h.Ledger.AdminListOffers)
			r.Post("/admin/offers", h.Ledger.AdminCreateOffer)
			r.Patch("/admin/offers/{id}", h.Ledger.AdminUpdateOffer)
			r.Get("/admin/reconcile", h.Ledger.AdminReconcile)
		})
	})

	return r
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.WithError(err).Warn("Health-check: БД недоступна")
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Start запускает сервер. Блокирует до остановки; http.ErrServerClosed не считается ошибкой.
func (s *Server) Start() error {
	log.Infof("HTTP-сервер слушает %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown дожидается активных запросов и останавливает лимитер.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Close()
	return s.http.Shutdown(ctx)
}
