// Package billing управляет глобальной биллинговой фазой и содержит чистые
// функции, определяющие доступ к PRO-возможностям в каждой фазе.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/period"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

const (
	// CacheKey ключ фазы в Redis.
	CacheKey = "billing:phase"
	// CacheTTL время жизни закэшированной фазы.
	CacheTTL = 30 * time.Second
	// DefaultNoticeDays длительность уведомительного периода по умолчанию.
	DefaultNoticeDays = 14
)

var (
	// ErrInvalidPhase неизвестная фаза.
	ErrInvalidPhase = errors.New("invalid billing phase")
	// ErrInvalidNoticeDays длительность периода должна быть положительной.
	ErrInvalidNoticeDays = errors.New("notice days must be positive")
)

// SettingsRepository хранилище единственной записи о фазе.
type SettingsRepository interface {
	GetBillingPhase(ctx context.Context) (models.BillingPhaseState, error)
	SaveBillingPhase(ctx context.Context, state models.BillingPhaseState) (models.BillingPhaseState, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Service биллинговая фаза.
type Service struct {
	repo  SettingsRepository
	cache Cache
	log   *slog.Logger
	now   func() time.Time
}

// New создает новый экземпляр Service. cache может быть nil.
func New(repo SettingsRepository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
		now:   time.Now,
	}
}

// Fetch возвращает текущую фазу. При ошибке чтения возвращает BETA_FREE:
// это безопасное значение, при котором никто не теряет доступ.
func (s *Service) Fetch(ctx context.Context) models.BillingPhaseState {
	const op = "billing.Fetch"
	log := s.log.With(slog.String("op", op))

	if s.cache != nil {
		var cached models.BillingPhaseState
		found, err := s.cache.Get(ctx, CacheKey, &cached)
		if err != nil {
			log.Warn("failed to read billing phase from cache", sl.Err(err))
		}
		if found && cached.Phase.Valid() {
			return cached
		}
	}

	state, err := s.repo.GetBillingPhase(ctx)
	if err != nil {
		log.Error("failed to fetch billing phase, using BETA_FREE", sl.Err(err))
		return models.DefaultBillingPhaseState()
	}
	if !state.Phase.Valid() {
		log.Error("stored billing phase is invalid, using BETA_FREE", slog.String("phase", string(state.Phase)))
		return models.DefaultBillingPhaseState()
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, CacheKey, state, CacheTTL); err != nil {
			log.Warn("failed to cache billing phase", sl.Err(err))
		}
	}
	return state
}

// Info возвращает текущую фазу вместе с датой активации и обратным отсчётом.
func (s *Service) Info(ctx context.Context) models.BillingPhaseInfo {
	return Describe(s.Fetch(ctx), s.now())
}

// Update меняет фазу. Поля, равные nil, остаются прежними. При переходе
// в NOTICE без даты начала период стартует сейчас, без длительности длится 14 дней.
func (s *Service) Update(ctx context.Context, upd models.BillingPhaseUpdate) (models.BillingPhaseInfo, error) {
	const op = "billing.Update"
	if upd.Phase != nil && !upd.Phase.Valid() {
		return models.BillingPhaseInfo{}, fmt.Errorf("%s: %w: %q", op, ErrInvalidPhase, *upd.Phase)
	}
	if upd.NoticeDays != nil && *upd.NoticeDays < 1 {
		return models.BillingPhaseInfo{}, fmt.Errorf("%s: %w", op, ErrInvalidNoticeDays)
	}

	current, err := s.repo.GetBillingPhase(ctx)
	if err != nil {
		return models.BillingPhaseInfo{}, fmt.Errorf("%s: %w", op, err)
	}

	next := current
	if upd.Phase != nil {
		next.Phase = *upd.Phase
	}
	if upd.ClearNotice {
		next.NoticeStartAt = nil
		next.NoticeDays = nil
	}
	if upd.NoticeStartAt != nil {
		t := upd.NoticeStartAt.UTC()
		next.NoticeStartAt = &t
	}
	if upd.NoticeDays != nil {
		d := *upd.NoticeDays
		next.NoticeDays = &d
	}
	if next.Phase == models.PhaseNotice {
		if next.NoticeStartAt == nil {
			t := s.now().UTC()
			next.NoticeStartAt = &t
		}
		if next.NoticeDays == nil {
			d := DefaultNoticeDays
			next.NoticeDays = &d
		}
	}

	saved, err := s.repo.SaveBillingPhase(ctx, next)
	if err != nil {
		return models.BillingPhaseInfo{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, CacheKey); err != nil {
			s.log.Warn("failed to invalidate billing phase cache", slog.String("op", op), sl.Err(err))
		}
	}

	s.log.Info("billing phase updated",
		slog.String("op", op),
		slog.String("from", string(current.Phase)),
		slog.String("to", string(saved.Phase)))
	return Describe(saved, s.now()), nil
}

// ShouldHaveProFeatures сообщает, получает ли пользователь с планом plan
// PRO-возможности в фазе phase.
func ShouldHaveProFeatures(plan models.PlanID, phase models.BillingPhase) bool {
	switch phase {
	case models.PhaseBetaFree, models.PhaseNotice:
		return true
	default:
		return plan == models.PlanPro
	}
}

// ActivationDate дата окончания уведомительного периода или nil, если период не задан.
func ActivationDate(state models.BillingPhaseState) *time.Time {
	if state.NoticeStartAt == nil || state.NoticeDays == nil || *state.NoticeDays <= 0 {
		return nil
	}
	t := period.AddDays(*state.NoticeStartAt, *state.NoticeDays)
	return &t
}

// IsNoticePeriodExpired истёк ли уведомительный период. Вне фазы NOTICE всегда false.
// Фаза при этом не меняется автоматически.
func IsNoticePeriodExpired(state models.BillingPhaseState, now time.Time) bool {
	if state.Phase != models.PhaseNotice {
		return false
	}
	activation := ActivationDate(state)
	if activation == nil {
		return false
	}
	return !now.Before(*activation)
}

// DaysUntilActivation число дней до активации биллинга, только в фазе NOTICE.
func DaysUntilActivation(state models.BillingPhaseState, now time.Time) *int {
	if state.Phase != models.PhaseNotice {
		return nil
	}
	activation := ActivationDate(state)
	if activation == nil {
		return nil
	}
	days := period.DaysUntil(now, *activation)
	return &days
}

// Describe дополняет состояние вычисленными датами.
func Describe(state models.BillingPhaseState, now time.Time) models.BillingPhaseInfo {
	return models.BillingPhaseInfo{
		BillingPhaseState:   state,
		ActivationDate:      ActivationDate(state),
		DaysUntilActivation: DaysUntilActivation(state, now),
	}
}
