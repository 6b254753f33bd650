package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

const overrideColumns = `user_id, plan_id, reason, expires_at, granted_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOverride(row rowScanner) (*models.PlanOverride, error) {
	var (
		o         models.PlanOverride
		planID    string
		expiresAt sql.NullTime
	)
	if err := row.Scan(&o.UserID, &planID, &o.Reason, &expiresAt, &o.GrantedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.PlanID = models.NormalizePlanID(planID)
	if expiresAt.Valid {
		t := expiresAt.Time
		o.ExpiresAt = &t
	}
	return &o, nil
}

// GetPlanOverride возвращает переопределение плана пользователя или ErrNotFound.
// Истёкшие записи возвращаются как есть, решение принимает вызывающий.
func (s *Storage) GetPlanOverride(ctx context.Context, userID string) (*models.PlanOverride, error) {
	const op = "storage.GetPlanOverride"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + overrideColumns + ` FROM plan_overrides WHERE user_id = $1`
	o, err := scanOverride(s.DB.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

// UpsertPlanOverride создаёт или заменяет переопределение пользователя.
func (s *Storage) UpsertPlanOverride(ctx context.Context, o models.PlanOverride) (*models.PlanOverride, error) {
	const op = "storage.UpsertPlanOverride"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var expiresAt sql.NullTime
	if o.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *o.ExpiresAt, Valid: true}
	}
	query := `INSERT INTO plan_overrides (user_id, plan_id, reason, expires_at, granted_by)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (user_id) DO UPDATE
			  SET plan_id = EXCLUDED.plan_id,
			      reason = EXCLUDED.reason,
			      expires_at = EXCLUDED.expires_at,
			      granted_by = EXCLUDED.granted_by,
			      updated_at = NOW()
			  RETURNING ` + overrideColumns
	stored, err := scanOverride(s.DB.QueryRowContext(ctx, query,
		o.UserID, string(o.PlanID), o.Reason, expiresAt, o.GrantedBy))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return stored, nil
}

// DeletePlanOverride удаляет переопределение. Отсутствие записи не ошибка.
func (s *Storage) DeletePlanOverride(ctx context.Context, userID string) (bool, error) {
	const op = "storage.DeletePlanOverride"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM plan_overrides WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// ListPlanOverrides возвращает все переопределения, новые первыми.
func (s *Storage) ListPlanOverrides(ctx context.Context) ([]models.PlanOverride, error) {
	const op = "storage.ListPlanOverrides"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+overrideColumns+` FROM plan_overrides ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.PlanOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
