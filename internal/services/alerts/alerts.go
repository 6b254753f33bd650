// Package alerts сохраняет административные оповещения и публикует их
// в RabbitMQ для отправителя писем.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/metrics"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/storage"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
	defaultSinceDays   = 7
)

// AlertRepository хранилище оповещений.
type AlertRepository interface {
	InsertAdminAlert(ctx context.Context, alert models.Alert) error
	ListAdminAlerts(ctx context.Context, filter storage.AlertFilter) ([]models.Alert, error)
	MarkAlertsRead(ctx context.Context, ids []string) (int64, error)
	CountUnreadAlerts(ctx context.Context) (int64, error)
}

// Publisher отправляет оповещение в брокер. Ключ маршрутизации равен виду оповещения.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// AMQPPublisher публикует в exchange RabbitMQ.
type AMQPPublisher struct {
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher создает новый экземпляр AMQPPublisher.
func NewAMQPPublisher(ch *amqp.Channel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

// Publish публикует сообщение в JSON.
func (p *AMQPPublisher) Publish(routingKey string, message any) error {
	return rabbitmq.PublishMessage(p.ch, p.exchange, routingKey, message)
}

// Service административные оповещения.
type Service struct {
	repo      AlertRepository
	publisher Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

// New создает новый экземпляр Service. publisher может быть nil: тогда
// оповещения только сохраняются.
func New(repo AlertRepository, publisher Publisher, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// Raise сохраняет оповещение и публикует его. Ошибки только логируются:
// оповещение никогда не мешает основному действию.
func (s *Service) Raise(ctx context.Context, alert models.Alert) {
	const op = "alerts.Raise"
	if alert.Payload == nil {
		s.log.Error("alert without payload dropped", slog.String("op", op), slog.String("title", alert.Title))
		return
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now().UTC()
	}
	log := s.log.With(slog.String("op", op), slog.String("alert_id", alert.ID), slog.String("kind", string(alert.Kind())))

	if err := s.repo.InsertAdminAlert(ctx, alert); err != nil {
		log.Error("failed to persist admin alert", sl.Err(err))
		return
	}
	s.metrics.AlertRaised(string(alert.Kind()))

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(string(alert.Kind()), alert); err != nil {
		log.Error("failed to publish admin alert", sl.Err(err))
		return
	}
	log.Info("admin alert raised")
}

// Recent возвращает оповещения за последние sinceDays дней.
func (s *Service) Recent(ctx context.Context, limit, sinceDays int, unreadOnly bool) ([]models.Alert, error) {
	const op = "alerts.Recent"
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	if sinceDays <= 0 {
		sinceDays = defaultSinceDays
	}

	list, err := s.repo.ListAdminAlerts(ctx, storage.AlertFilter{
		Limit:      limit,
		Since:      s.now().UTC().AddDate(0, 0, -sinceDays),
		UnreadOnly: unreadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if list == nil {
		list = []models.Alert{}
	}
	return list, nil
}

// MarkRead помечает оповещения прочитанными. Пустой список означает все.
func (s *Service) MarkRead(ctx context.Context, ids []string) (int64, error) {
	const op = "alerts.MarkRead"
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return 0, fmt.Errorf("%s: invalid alert id %q: %w", op, id, err)
		}
	}
	n, err := s.repo.MarkAlertsRead(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// UnreadCount число непрочитанных оповещений.
func (s *Service) UnreadCount(ctx context.Context) (int64, error) {
	const op = "alerts.UnreadCount"
	n, err := s.repo.CountUnreadAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// RaiseTestEmail поднимает тестовое оповещение, которое рассыльщик
// отправит всем recipients администраторам.
func (s *Service) RaiseTestEmail(ctx context.Context, triggeredBy string, recipients int) models.Alert {
	if triggeredBy == "" {
		triggeredBy = "Admin Dashboard"
	}
	alert := models.Alert{
		ID:        uuid.NewString(),
		Title:     "Admin test email sent",
		Message:   fmt.Sprintf("Test email sent to %d admin recipient(s) via %s.", recipients, triggeredBy),
		Payload:   models.TestEmailPayload{TriggeredBy: triggeredBy},
		CreatedAt: s.now().UTC(),
	}
	s.Raise(ctx, alert)
	return alert
}
