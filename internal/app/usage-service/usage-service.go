package usageservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"
	"google.golang.org/grpc"

	"github.com/magabrotheeeer/goflexconnect/internal/cache"
	"github.com/magabrotheeeer/goflexconnect/internal/config"
	"github.com/magabrotheeeer/goflexconnect/internal/grpc/server"
	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/jwt"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/metrics"
	"github.com/magabrotheeeer/goflexconnect/internal/migrations"
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
)

// App основное приложение: HTTP API, gRPC-шлюз и ретранслятор телеметрии.
type App struct {
	server     *http.Server
	grpcServer *grpc.Server
	listener   net.Listener
	telemetry  *telemetry.Service
	limiter    *middlewarectx.UserLimiter
	logger     *slog.Logger
	db         *storage.Storage
	cache      *cache.Cache
	conn       *amqp.Connection
	ch         *amqp.Channel
}

// New поднимает зависимости и собирает сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Exchange, rabbitmq.AlertQueues(cfg.RabbitMQ.Queue))
	if err != nil {
		_ = conn.Close()
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	isAdmin := func(s models.Session) bool {
		return s.IsAdmin() || cfg.Admin.IsAdminEmail(s.Email)
	}

	alertsService := alerts.New(db, alerts.NewAMQPPublisher(ch, cfg.RabbitMQ.Exchange), m, logger)
	trackingService := tracking.New(db, alertsService, m, logger,
		tracking.WithTestQueryTimeout(cfg.Usage.TestQueryTimeout),
	)
	billingService := billing.New(db, cacheRedis, logger)
	planService := plan.New(db, billingService, trackingService, logger)

	var usageOpts []usage.Option
	if cfg.Usage.StrictEnforcement {
		usageOpts = append(usageOpts, usage.WithStrictEnforcement(cacheRedis, cfg.Usage.LockTTL))
	}
	usageService := usage.New(trackingService, alertsService, m, logger, usageOpts...)
	telemetryService := telemetry.New(cacheRedis, cfg.Telemetry.Channel, cfg.Telemetry.HistorySize, m, logger)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	limiter := middlewarectx.NewUserLimiter(cfg.HTTPServer.RateLimit, cfg.HTTPServer.RateBurst)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Services{
		Tokens:          jwtMaker,
		IsAdmin:         isAdmin,
		Limiter:         limiter,
		Storage:         db,
		Tracking:        trackingService,
		Usage:           usageService,
		Plan:            planService,
		Billing:         billingService,
		Overrides:       overrides.New(db, logger),
		Notices:         notices.New(billingService, planService, trackingService, isAdmin, logger),
		Alerts:          alertsService,
		SelfTest:        selftest.New(trackingService, db, db, logger),
		Telemetry:       telemetryService,
		AdminRecipients: len(cfg.Admin.Emails),
		AllowedOrigins:  cfg.Telemetry.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:        cfg.AddressHTTP,
		Handler:     router,
		ReadTimeout: cfg.TimeoutHTTP,
		IdleTimeout: cfg.IdleTimeout,
	}

	lis, err := net.Listen("tcp", cfg.AddressGRPC)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, err
	}
	grpcServer := grpc.NewServer()
	server.Register(grpcServer, server.NewUsageGate(planService, trackingService, jwtMaker, logger))

	return &App{
		server:     srv,
		grpcServer: grpcServer,
		listener:   lis,
		telemetry:  telemetryService,
		limiter:    limiter,
		logger:     logger,
		db:         db,
		cache:      cacheRedis,
		conn:       conn,
		ch:         ch,
	}, nil
}

// Run обслуживает запросы до отмены ctx, затем останавливает серверы.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()
	go func() {
		a.logger.Info("UsageGate gRPC service listening on", slog.String("address", a.listener.Addr().String()))
		errCh <- a.grpcServer.Serve(a.listener)
	}()

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go func() {
		if err := a.telemetry.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("telemetry relay stopped", sl.Err(err))
		}
	}()
	go a.limiter.RunSweeper(relayCtx, time.Minute, middlewarectx.DefaultLimiterIdle)

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.logger.Info("shutting down HTTP and gRPC servers gracefully")
	if err := a.server.Shutdown(timeoutCtx); err != nil && runErr == nil {
		runErr = err
	}
	a.grpcServer.GracefulStop()
	stopRelay()
	a.close()
	return runErr
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close cache", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
