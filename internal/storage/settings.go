package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

const settingsColumns = `billing_phase, billing_notice_start_at, billing_notice_days, updated_at`

func scanBillingPhase(row rowScanner) (models.BillingPhaseState, error) {
	var (
		state       models.BillingPhaseState
		phase       string
		noticeStart sql.NullTime
		noticeDays  sql.NullInt32
	)
	if err := row.Scan(&phase, &noticeStart, &noticeDays, &state.UpdatedAt); err != nil {
		return state, err
	}
	state.Phase = models.BillingPhase(phase)
	if noticeStart.Valid {
		t := noticeStart.Time
		state.NoticeStartAt = &t
	}
	if noticeDays.Valid {
		d := int(noticeDays.Int32)
		state.NoticeDays = &d
	}
	return state, nil
}

// GetBillingPhase читает глобальную запись фазы. Если её нет, создаёт
// запись BETA_FREE; гонку двух первых вставок разрешает уникальный ключ.
func (s *Storage) GetBillingPhase(ctx context.Context) (models.BillingPhaseState, error) {
	const op = "storage.GetBillingPhase"
	if err := checkCtx(ctx, op); err != nil {
		return models.BillingPhaseState{}, err
	}

	selectQuery := `SELECT ` + settingsColumns + ` FROM app_settings WHERE id = 1`
	state, err := scanBillingPhase(s.DB.QueryRowContext(ctx, selectQuery))
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.BillingPhaseState{}, fmt.Errorf("%s: %w", op, err)
	}

	insertQuery := `INSERT INTO app_settings (id, billing_phase) VALUES (1, $1) RETURNING ` + settingsColumns
	state, err = scanBillingPhase(s.DB.QueryRowContext(ctx, insertQuery, string(models.PhaseBetaFree)))
	if isUniqueViolation(err) {
		state, err = scanBillingPhase(s.DB.QueryRowContext(ctx, selectQuery))
	}
	if err != nil {
		return models.BillingPhaseState{}, fmt.Errorf("%s: %w", op, err)
	}
	return state, nil
}

// SaveBillingPhase записывает глобальную фазу целиком.
func (s *Storage) SaveBillingPhase(ctx context.Context, state models.BillingPhaseState) (models.BillingPhaseState, error) {
	const op = "storage.SaveBillingPhase"
	if err := checkCtx(ctx, op); err != nil {
		return models.BillingPhaseState{}, err
	}

	var (
		noticeStart sql.NullTime
		noticeDays  sql.NullInt32
	)
	if state.NoticeStartAt != nil {
		noticeStart = sql.NullTime{Time: *state.NoticeStartAt, Valid: true}
	}
	if state.NoticeDays != nil {
		noticeDays = sql.NullInt32{Int32: int32(*state.NoticeDays), Valid: true}
	}

	query := `INSERT INTO app_settings (id, billing_phase, billing_notice_start_at, billing_notice_days, updated_at)
			  VALUES (1, $1, $2, $3, NOW())
			  ON CONFLICT (id) DO UPDATE
			  SET billing_phase = EXCLUDED.billing_phase,
			      billing_notice_start_at = EXCLUDED.billing_notice_start_at,
			      billing_notice_days = EXCLUDED.billing_notice_days,
			      updated_at = NOW()
			  RETURNING ` + settingsColumns
	saved, err := scanBillingPhase(s.DB.QueryRowContext(ctx, query, string(state.Phase), noticeStart, noticeDays))
	if err != nil {
		return models.BillingPhaseState{}, fmt.Errorf("%s: %w", op, err)
	}
	return saved, nil
}
