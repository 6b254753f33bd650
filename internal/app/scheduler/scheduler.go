// Package scheduler содержит приложение планировщика уведомительного периода биллинга.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/goflexconnect/internal/cache"
	"github.com/magabrotheeeer/goflexconnect/internal/config"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/metrics"
	"github.com/magabrotheeeer/goflexconnect/internal/services/alerts"
	"github.com/magabrotheeeer/goflexconnect/internal/services/billing"
	schedulerservice "github.com/magabrotheeeer/goflexconnect/internal/services/scheduler"
	"github.com/magabrotheeeer/goflexconnect/internal/storage"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	db               *storage.Storage
	cache            *cache.Cache
	conn             *amqp.Connection
	ch               *amqp.Channel
	logger           *slog.Logger
}

func waitForDB(ctx context.Context, db *storage.Storage) error {
	var err error
	for range 10 {
		if err = db.CheckDatabaseReady(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Exchange, rabbitmq.AlertQueues(cfg.RabbitMQ.Queue))
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := storage.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	alertsService := alerts.New(db, alerts.NewAMQPPublisher(ch, cfg.RabbitMQ.Exchange), m, logger)
	billingService := billing.New(db, cacheRedis, logger)
	schedulerService := schedulerservice.NewSchedulerService(
		billingService, cacheRedis, alertsService, cfg.BillingScheduler.Interval, logger,
	)

	return &App{
		schedulerService: schedulerService,
		db:               db,
		cache:            cacheRedis,
		conn:             conn,
		ch:               ch,
		logger:           logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run запускает планировщик.
func (a *App) Run(ctx context.Context) error {
	go a.schedulerService.WatchNoticePeriod(ctx)

	<-ctx.Done()

	a.logger.Info("shutting down scheduler service")

	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close cache", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
	closeResources(a.ch, a.conn, a.logger)

	return nil
}
