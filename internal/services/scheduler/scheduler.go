// Package scheduler следит за уведомительным периодом биллинга и
// оповещает администраторов, когда пора вручную включить PAID_LIVE.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/billing"
)

const (
	// DefaultInterval период проверки.
	DefaultInterval = time.Hour
	// dedupeTTL сколько помнить уже отправленное оповещение.
	dedupeTTL = 30 * 24 * time.Hour
)

// PhaseProvider источник текущей биллинговой фазы.
type PhaseProvider interface {
	Fetch(ctx context.Context) models.BillingPhaseState
}

// Deduplicator атомарная отметка «уже сделано».
type Deduplicator interface {
	SetNX(ctx context.Context, key string, expiration time.Duration) (bool, error)
}

// AlertRaiser поднимает административные оповещения.
type AlertRaiser interface {
	Raise(ctx context.Context, alert models.Alert)
}

// SchedulerService наблюдатель уведомительного периода.
type SchedulerService struct {
	phases   PhaseProvider
	dedupe   Deduplicator
	alerts   AlertRaiser
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(phases PhaseProvider, dedupe Deduplicator, alerts AlertRaiser, interval time.Duration, log *slog.Logger) *SchedulerService {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &SchedulerService{
		phases:   phases,
		dedupe:   dedupe,
		alerts:   alerts,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// WatchNoticePeriod проверяет фазу сразу и затем по таймеру до отмены ctx.
func (s *SchedulerService) WatchNoticePeriod(ctx context.Context) {
	s.runCheckNoticePeriod(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("notice period watcher stopped")
			return
		case <-ticker.C:
			s.runCheckNoticePeriod(ctx)
		}
	}
}

// runCheckNoticePeriod поднимает одно оповещение billing_notice_expired
// на каждую дату активации. Фаза не меняется.
func (s *SchedulerService) runCheckNoticePeriod(ctx context.Context) bool {
	const op = "scheduler.runCheckNoticePeriod"
	log := s.log.With(slog.String("op", op))

	state := s.phases.Fetch(ctx)
	now := s.now()
	if !billing.IsNoticePeriodExpired(state, now) {
		log.Debug("notice period not expired", slog.String("phase", string(state.Phase)))
		return false
	}
	activation := billing.ActivationDate(state)

	first, err := s.dedupe.SetNX(ctx, DedupeKey(*activation), dedupeTTL)
	if err != nil {
		log.Error("failed to mark notice alert, skipping this run", sl.Err(err))
		return false
	}
	if !first {
		log.Debug("notice expired alert already sent")
		return false
	}

	log.Info("notice period expired, alerting admins", slog.Time("activation_date", *activation))
	s.alerts.Raise(ctx, models.Alert{
		Title: "Billing notice period has ended",
		Message: fmt.Sprintf("The %d-day notice period ended on %s. Switch the billing phase to PAID_LIVE in the admin console.",
			*state.NoticeDays, activation.UTC().Format("2006-01-02")),
		Payload: models.BillingNoticeExpiredPayload{
			ActivationDate: activation.UTC(),
			NoticeDays:     *state.NoticeDays,
		},
	})
	return true
}

// DedupeKey ключ отметки об отправленном оповещении.
func DedupeKey(activation time.Time) string {
	return "billing:notice_expired:" + activation.UTC().Format(time.RFC3339)
}
