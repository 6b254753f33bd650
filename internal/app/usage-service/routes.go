// Package usageservice собирает HTTP API, gRPC-шлюз и поток телеметрии в одно приложение.
package usageservice

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/alerts/list"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/alerts/markread"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/alerts/testemail"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/alerts/unread"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/billing/phase"
	billingupdate "github.com/magabrotheeeer/goflexconnect/internal/http/handlers/billing/update"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/health"
	noticeslist "github.com/magabrotheeeer/goflexconnect/internal/http/handlers/notices/list"
	overrideget "github.com/magabrotheeeer/goflexconnect/internal/http/handlers/overrides/get"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/overrides/grant"
	overridelist "github.com/magabrotheeeer/goflexconnect/internal/http/handlers/overrides/list"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/overrides/revoke"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/plan/guard"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/plan/resolve"
	selftestrun "github.com/magabrotheeeer/goflexconnect/internal/http/handlers/selftest/run"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/selftest/scenarios"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/telemetry/ingest"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/telemetry/snapshot"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/telemetry/stream"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/usage/check"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/usage/purge"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/usage/record"
	"github.com/magabrotheeeer/goflexconnect/internal/http/handlers/usage/summary"
	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/alerts"
	"github.com/magabrotheeeer/goflexconnect/internal/services/billing"
	"github.com/magabrotheeeer/goflexconnect/internal/services/notices"
	"github.com/magabrotheeeer/goflexconnect/internal/services/overrides"
	"github.com/magabrotheeeer/goflexconnect/internal/services/plan"
	"github.com/magabrotheeeer/goflexconnect/internal/services/selftest"
	"github.com/magabrotheeeer/goflexconnect/internal/services/telemetry"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
	"github.com/magabrotheeeer/goflexconnect/internal/services/usage"
	"github.com/magabrotheeeer/goflexconnect/internal/storage"

	// Регистрация документации swagger.
	_ "github.com/magabrotheeeer/goflexconnect/docs"
)

// Services набор сервисов, которые обслуживают маршруты.
type Services struct {
	Tokens    middlewarectx.TokenParser
	IsAdmin   func(models.Session) bool
	Limiter   *middlewarectx.UserLimiter
	Storage   *storage.Storage
	Tracking  *tracking.Service
	Usage     *usage.Service
	Plan      *plan.Service
	Billing   *billing.Service
	Overrides *overrides.Service
	Notices   *notices.Service
	Alerts    *alerts.Service
	SelfTest  *selftest.Service
	Telemetry *telemetry.Service

	AdminRecipients int
	AllowedOrigins  []string
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, s Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Get("/health", health.New(logger, s.Storage).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.JWTMiddleware(s.Tokens, logger))
		r.Use(middlewarectx.RateLimitMiddleware(s.Limiter, logger))

		r.Post("/usage/record", record.New(logger, s.Usage, s.Plan, s.IsAdmin).ServeHTTP)
		r.Post("/usage/check", check.New(logger, s.Tracking, s.Plan).ServeHTTP)
		r.Get("/usage/summary", summary.New(logger, s.Tracking).ServeHTTP)
		r.Get("/plan", resolve.New(logger, s.Plan).ServeHTTP)
		r.Post("/plan/guard/{action}", guard.New(logger, s.Plan).ServeHTTP)
		r.Get("/notices", noticeslist.New(logger, s.Notices).ServeHTTP)
		r.Get("/billing/phase", phase.New(logger, s.Billing).ServeHTTP)
		r.Post("/telemetry", ingest.New(logger, s.Telemetry).ServeHTTP)

		// Административные маршруты
		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewarectx.AdminOnly(s.IsAdmin, logger))

			r.Put("/billing/phase", billingupdate.New(logger, s.Billing).ServeHTTP)

			r.Get("/overrides", overridelist.New(logger, s.Overrides).ServeHTTP)
			r.Get("/overrides/{userID}", overrideget.New(logger, s.Overrides).ServeHTTP)
			r.Put("/overrides/{userID}", grant.New(logger, s.Overrides).ServeHTTP)
			r.Delete("/overrides/{userID}", revoke.New(logger, s.Overrides).ServeHTTP)

			r.Get("/alerts", list.New(logger, s.Alerts).ServeHTTP)
			r.Post("/alerts/read", markread.New(logger, s.Alerts).ServeHTTP)
			r.Get("/alerts/unread", unread.New(logger, s.Alerts).ServeHTTP)
			r.Post("/alerts/test-email", testemail.New(logger, s.Alerts, s.AdminRecipients).ServeHTTP)

			r.Get("/selftest", scenarios.New(logger, s.SelfTest).ServeHTTP)
			r.Post("/selftest", selftestrun.New(logger, s.SelfTest).ServeHTTP)

			r.Delete("/usage/{userID}", purge.New(logger, s.Storage).ServeHTTP)

			r.Get("/telemetry", snapshot.New(logger, s.Telemetry).ServeHTTP)
			r.Get("/telemetry/ws", stream.New(logger, s.Telemetry, s.AllowedOrigins).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
