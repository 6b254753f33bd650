// Package telemetry хранит короткую историю живой телеметрии для панели
// администратора. Точки приходят через Redis pub/sub, для каждого
// источника хранится не больше HistorySize последних значений.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/metrics"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

const (
	// DefaultChannel канал Redis с точками телеметрии.
	DefaultChannel = "telemetry:signal"
	// DefaultHistorySize число хранимых точек на источник.
	DefaultHistorySize = 20

	subscriberBuffer = 16
)

// ErrInvalidSample точка без источника.
var ErrInvalidSample = errors.New("telemetry sample must have a source")

// Broker pub/sub транспорт.
type Broker interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channel string) *redis.PubSub
}

// Service история телеметрии и раздача живого потока.
type Service struct {
	broker      Broker
	channel     string
	historySize int
	metrics     *metrics.Metrics
	log         *slog.Logger
	now         func() time.Time

	mu          sync.RWMutex
	history     map[string][]models.TelemetrySample
	subscribers map[chan models.TelemetrySample]struct{}
}

// New создает новый экземпляр Service.
func New(broker Broker, channel string, historySize int, m *metrics.Metrics, log *slog.Logger) *Service {
	if channel == "" {
		channel = DefaultChannel
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Service{
		broker:      broker,
		channel:     channel,
		historySize: historySize,
		metrics:     m,
		log:         log,
		now:         time.Now,
		history:     make(map[string][]models.TelemetrySample),
		subscribers: make(map[chan models.TelemetrySample]struct{}),
	}
}

// Publish отправляет точку в канал. Время проставляется, если не задано.
func (s *Service) Publish(ctx context.Context, sample models.TelemetrySample) error {
	const op = "telemetry.Publish"
	if sample.Source == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidSample)
	}
	if sample.At.IsZero() {
		sample.At = s.now().UTC()
	}
	if err := s.broker.Publish(ctx, s.channel, sample); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Run читает канал до отмены ctx. Некорректные сообщения пропускаются.
func (s *Service) Run(ctx context.Context) error {
	const op = "telemetry.Run"
	log := s.log.With(slog.String("op", op), slog.String("channel", s.channel))

	pubsub := s.broker.Subscribe(ctx, s.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("telemetry subscription started")

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info("telemetry subscription stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var sample models.TelemetrySample
			if err := json.Unmarshal([]byte(msg.Payload), &sample); err != nil {
				log.Warn("skipping malformed telemetry message", sl.Err(err))
				continue
			}
			s.Append(sample)
		}
	}
}

// Append добавляет точку в историю и рассылает её подписчикам.
// Медленный подписчик теряет точки.
func (s *Service) Append(sample models.TelemetrySample) {
	if sample.Source == "" {
		return
	}
	s.mu.Lock()
	points := append(s.history[sample.Source], sample)
	if len(points) > s.historySize {
		points = append([]models.TelemetrySample(nil), points[len(points)-s.historySize:]...)
	}
	s.history[sample.Source] = points
	for ch := range s.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
	s.mu.Unlock()
}

// Snapshot копия истории по всем источникам.
func (s *Service) Snapshot() map[string][]models.TelemetrySample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]models.TelemetrySample, len(s.history))
	for src, points := range s.history {
		out[src] = append([]models.TelemetrySample(nil), points...)
	}
	return out
}

// Subscribe открывает поток новых точек. Вызывающий обязан вызвать cancel.
func (s *Service) Subscribe() (<-chan models.TelemetrySample, func()) {
	ch := make(chan models.TelemetrySample, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	s.metrics.SubscriberAdded()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			close(ch)
			s.mu.Unlock()
			s.metrics.SubscriberRemoved()
		})
	}
}
