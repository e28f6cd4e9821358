// Пакет server: HTTP-сервер eventgate с graceful shutdown.
// Без TLS: TLS termination на ingress / API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/eventgate/internal/api/handlers"
	"github.com/bigkaa/eventgate/internal/api/middleware"
	"github.com/bigkaa/eventgate/internal/api/openapi"
	"github.com/bigkaa/eventgate/internal/config"
	"github.com/bigkaa/eventgate/internal/domain/rbac"
	"github.com/bigkaa/eventgate/internal/ratelimit"
)

// Deps: зависимости маршрутизатора.
type Deps struct {
	API     *handlers.APIHandler
	Health  *handlers.HealthHandler
	Spec    *openapi.Spec
	JWTAuth *middleware.JWTAuth
	// RegistrationLimiter: лимит публичных записей (по IP клиента)
	RegistrationLimiter *ratelimit.Limiter
	// APILimiter: лимит прочих запросов (по сотруднику или IP)
	APILimiter *ratelimit.Limiter
}

// Server: HTTP-сервер eventgate.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	srv.RegisterOnShutdown(deps.API.CloseStreams)

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты API.
//
// Публичные endpoints не требуют токена; запись (регистрация, проверка
// дубликатов) ограничена лимитом registration по IP. Все endpoints
// сотрудников проходят JWT, лимит api и проверку права роли.
func NewRouter(cfg *config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	r.Use(chimw.RequestID)
	r.Use(middleware.ClientIP(cfg.TrustedProxies))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	// Health и metrics проверяются Kubernetes напрямую, без лимитов.
	r.Get("/health/live", d.Health.HealthLive)
	r.Get("/health/ready", d.Health.HealthReady)
	r.Get("/metrics", d.Health.GetMetrics)
	r.Get("/api/v1/openapi.json", d.Spec.ServeJSON)

	// Публичные endpoints
	r.Group(func(r chi.Router) {
		limited := middleware.RateLimit(d.RegistrationLimiter, "registration", middleware.ByClientIP)

		r.With(limited, d.Spec.Validate("/api/v1/registrations")).
			Post("/api/v1/registrations", d.API.CreateRegistration)
		r.With(limited, d.Spec.Validate("/api/v1/registrations/check-duplicate")).
			Post("/api/v1/registrations/check-duplicate", d.API.CheckDuplicate)

		// SSE-поток держит соединение, лимит на нём бессмыслен
		r.Get("/api/v1/public/stats/stream", d.API.StreamPublicStats)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.APILimiter, "api", middleware.ByClientIP))
			r.Get("/api/v1/public/qid/{qid}", d.API.QIDPrefill)
			r.Get("/api/v1/public/stats", d.API.PublicStats)
			r.Get("/api/v1/public/event", d.API.PublicEvent)
		})
	})

	// Endpoints сотрудников
	r.Group(func(r chi.Router) {
		r.Use(d.JWTAuth.Middleware())
		r.Use(middleware.RateLimit(d.APILimiter, "api", middleware.ByPrincipal))

		can := middleware.RequireCapability

		r.Get("/api/v1/me", d.API.Me)

		r.With(can(rbac.CapViewRegistrations)).Get("/api/v1/registrations", d.API.ListRegistrations)
		r.With(can(rbac.CapViewRegistrations)).Get("/api/v1/registrations/stats", d.API.DashboardStats)
		r.With(can(rbac.CapExportRegistrations)).Get("/api/v1/registrations/export", d.API.ExportRegistrations)
		r.With(can(rbac.CapViewRegistrations)).Get("/api/v1/registrations/{id}", d.API.GetRegistration)
		r.With(can(rbac.CapUpdateRegistration)).Patch("/api/v1/registrations/{id}", d.API.UpdateRegistration)
		r.With(can(rbac.CapDeleteRegistration)).Delete("/api/v1/registrations/{id}", d.API.DeleteRegistration)

		r.With(can(rbac.CapCheckIn), d.Spec.Validate("/api/v1/validation/check-in")).
			Post("/api/v1/validation/check-in", d.API.CheckIn)
		r.With(can(rbac.CapCheckIn), d.Spec.Validate("/api/v1/validation/lookup")).
			Post("/api/v1/validation/lookup", d.API.Lookup)

		r.With(can(rbac.CapViewRegistrations)).Get("/api/v1/dashboard/stats", d.API.DashboardStats)

		r.Route("/api/v1/users", func(r chi.Router) {
			r.Use(can(rbac.CapManageUsers))
			r.Get("/", d.API.ListUsers)
			r.Post("/", d.API.CreateUser)
			r.Get("/{id}", d.API.GetUser)
			r.Patch("/{id}", d.API.UpdateUser)
			r.Delete("/{id}", d.API.DeactivateUser)
		})

		r.With(can(rbac.CapViewRegistrations)).Get("/api/v1/settings", d.API.GetSettings)
		r.With(can(rbac.CapManageSettings)).Put("/api/v1/settings", d.API.UpdateSettings)

		r.With(can(rbac.CapViewAudit)).Get("/api/v1/audit-logs", d.API.ListAuditLogs)
		r.With(can(rbac.CapInvite)).Post("/api/v1/invite", d.API.SendInvite)
	})

	return r
}

// Run запускает сервер и ожидает отмены ctx (SIGINT, SIGTERM в main).
// После отмены выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
