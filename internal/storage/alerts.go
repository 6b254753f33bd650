package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// AlertFilter условия выборки оповещений.
type AlertFilter struct {
	Limit      int
	Since      time.Time
	UnreadOnly bool
}

// InsertAdminAlert сохраняет оповещение вместе с типизированными данными в jsonb.
func (s *Storage) InsertAdminAlert(ctx context.Context, alert models.Alert) error {
	const op = "storage.InsertAdminAlert"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	if alert.Payload == nil {
		return fmt.Errorf("%s: payload is required", op)
	}

	payload, err := json.Marshal(alert.Payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	query := `INSERT INTO admin_alerts (id, user_id, kind, title, message, payload, is_read, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.DB.ExecContext(ctx, query,
		alert.ID, nullString(alert.UserID), string(alert.Kind()), alert.Title, alert.Message,
		string(payload), alert.IsRead, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListAdminAlerts возвращает оповещения, новые первыми.
func (s *Storage) ListAdminAlerts(ctx context.Context, filter AlertFilter) ([]models.Alert, error) {
	const op = "storage.ListAdminAlerts"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, user_id, kind, title, message, payload, is_read, created_at
			  FROM admin_alerts
			  WHERE created_at >= $1 AND ($2 = false OR is_read = false)
			  ORDER BY created_at DESC
			  LIMIT $3`
	rows, err := s.DB.QueryContext(ctx, query, filter.Since, filter.UnreadOnly, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.Alert
	for rows.Next() {
		var (
			a       models.Alert
			userID  sql.NullString
			kind    string
			payload []byte
		)
		if err := rows.Scan(&a.ID, &userID, &kind, &a.Title, &a.Message, &payload, &a.IsRead, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.UserID = userID.String
		a.Payload, err = models.DecodeAlertPayload(models.AlertKind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// MarkAlertsRead помечает оповещения прочитанными. Пустой список помечает все.
func (s *Storage) MarkAlertsRead(ctx context.Context, ids []string) (int64, error) {
	const op = "storage.MarkAlertsRead"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var (
		result sql.Result
		err    error
	)
	if len(ids) == 0 {
		result, err = s.DB.ExecContext(ctx, `UPDATE admin_alerts SET is_read = true WHERE is_read = false`)
	} else {
		result, err = s.DB.ExecContext(ctx,
			`UPDATE admin_alerts SET is_read = true WHERE id = ANY($1::uuid[]) AND is_read = false`, ids)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// CountUnreadAlerts возвращает число непрочитанных оповещений.
func (s *Storage) CountUnreadAlerts(ctx context.Context) (int64, error) {
	const op = "storage.CountUnreadAlerts"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var n int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_alerts WHERE is_read = false`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
