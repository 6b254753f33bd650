// Package overrides административное управление переопределениями плана.
package overrides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/storage"
)

// DefaultReason причина по умолчанию при выдаче PRO.
const DefaultReason = "Manual PRO access"

var (
	// ErrInvalidPlan план не FREE и не PRO.
	ErrInvalidPlan = errors.New("plan must be FREE or PRO")
	// ErrExpiresInPast дата окончания уже прошла.
	ErrExpiresInPast = errors.New("expiration date is in the past")
	// ErrEmptyUserID не указан пользователь.
	ErrEmptyUserID = errors.New("user id is required")
)

// Repository хранилище переопределений.
type Repository interface {
	GetPlanOverride(ctx context.Context, userID string) (*models.PlanOverride, error)
	UpsertPlanOverride(ctx context.Context, o models.PlanOverride) (*models.PlanOverride, error)
	DeletePlanOverride(ctx context.Context, userID string) (bool, error)
	ListPlanOverrides(ctx context.Context) ([]models.PlanOverride, error)
}

// GrantParams параметры выдачи плана.
type GrantParams struct {
	UserID    string
	Plan      string
	Reason    string
	ExpiresAt *time.Time
}

// Service переопределения планов.
type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

// New создает новый экземпляр Service.
func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log, now: time.Now}
}

// Grant выдаёт пользователю план от имени администратора admin.
// Выдача FREE равносильна Revoke и возвращает nil.
func (s *Service) Grant(ctx context.Context, admin models.Session, p GrantParams) (*models.PlanOverride, error) {
	const op = "overrides.Grant"
	if p.UserID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyUserID)
	}
	plan := strings.ToLower(strings.TrimSpace(p.Plan))
	switch models.PlanID(plan) {
	case models.PlanFree:
		if _, err := s.Revoke(ctx, p.UserID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, nil
	case models.PlanPro:
	default:
		return nil, fmt.Errorf("%s: %w: %q", op, ErrInvalidPlan, p.Plan)
	}
	if p.ExpiresAt != nil && p.ExpiresAt.Before(s.now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrExpiresInPast)
	}

	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		reason = DefaultReason
	}
	stored, err := s.repo.UpsertPlanOverride(ctx, models.PlanOverride{
		UserID:    p.UserID,
		PlanID:    models.PlanPro,
		Reason:    reason,
		ExpiresAt: p.ExpiresAt,
		GrantedBy: admin.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("plan override granted",
		slog.String("op", op),
		slog.String("user_id", p.UserID),
		slog.String("granted_by", admin.UserID))
	return stored, nil
}

// Revoke снимает переопределение. Возвращает false, если его не было.
func (s *Service) Revoke(ctx context.Context, userID string) (bool, error) {
	const op = "overrides.Revoke"
	if userID == "" {
		return false, fmt.Errorf("%s: %w", op, ErrEmptyUserID)
	}
	deleted, err := s.repo.DeletePlanOverride(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if deleted {
		s.log.Info("plan override revoked", slog.String("op", op), slog.String("user_id", userID))
	}
	return deleted, nil
}

// Get возвращает переопределение пользователя или storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, userID string) (*models.PlanOverride, error) {
	const op = "overrides.Get"
	o, err := s.repo.GetPlanOverride(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

// List возвращает все переопределения, включая истёкшие.
func (s *Service) List(ctx context.Context) ([]models.PlanOverride, error) {
	const op = "overrides.List"
	list, err := s.repo.ListPlanOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if list == nil {
		list = []models.PlanOverride{}
	}
	return list, nil
}

// IsNotFound сообщает, что переопределения нет.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
