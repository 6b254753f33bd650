package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// InsertUsageEvent добавляет неизменяемую запись о событии использования.
func (s *Storage) InsertUsageEvent(ctx context.Context, event models.UsageEvent) error {
	const op = "storage.InsertUsageEvent"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO usage_events (id, user_id, event_type, project_id, survey_id, count, is_test, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.DB.ExecContext(ctx, query,
		event.ID, event.UserID, string(event.EventType),
		nullString(event.ProjectID), nullString(event.SurveyID),
		event.Count, event.IsTest, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListUsageEvents возвращает все события пользователя с заданным признаком is_test.
// Выборка не ограничена: сводка пересчитывается по полному журналу.
func (s *Storage) ListUsageEvents(ctx context.Context, userID string, isTest bool) ([]models.UsageEvent, error) {
	const op = "storage.ListUsageEvents"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, user_id, event_type, project_id, survey_id, count, is_test, created_at
			  FROM usage_events
			  WHERE user_id = $1 AND is_test = $2
			  ORDER BY created_at`
	rows, err := s.DB.QueryContext(ctx, query, userID, isTest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.UsageEvent
	for rows.Next() {
		var (
			item      models.UsageEvent
			eventType string
			projectID sql.NullString
			surveyID  sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.UserID, &eventType, &projectID, &surveyID,
			&item.Count, &item.IsTest, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		item.EventType = models.EventType(eventType)
		item.ProjectID = projectID.String
		item.SurveyID = surveyID.String
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteTestUsageEvents удаляет тестовые события пользователя и возвращает число удалённых строк.
func (s *Storage) DeleteTestUsageEvents(ctx context.Context, userID string) (int64, error) {
	return s.deleteUsageEvents(ctx, "storage.DeleteTestUsageEvents",
		`DELETE FROM usage_events WHERE user_id = $1 AND is_test = true`, userID)
}

// PurgeUsageEvents удаляет все события пользователя, включая тестовые.
func (s *Storage) PurgeUsageEvents(ctx context.Context, userID string) (int64, error) {
	return s.deleteUsageEvents(ctx, "storage.PurgeUsageEvents",
		`DELETE FROM usage_events WHERE user_id = $1`, userID)
}

func (s *Storage) deleteUsageEvents(ctx context.Context, op, query, userID string) (int64, error) {
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	result, err := s.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
