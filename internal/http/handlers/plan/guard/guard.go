// Package guard реализует HTTP-обработчик проверки действия перед его
// выполнением: создание проекта или опроса, запись замеров, AI-анализ,
// экспорт тепловой карты и тест скорости.
package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/plan"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
)

// Действия, которые можно проверить.
const (
	ActionProject     = "project"
	ActionSurvey      = "survey"
	ActionMeasurement = "measurement"
	ActionAIInsight   = "ai_insight"
	ActionHeatmap     = "heatmap"
	ActionSpeedTest   = "speed_test"
)

// Handler проверяет действие по лимитам эффективного плана.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает проверки действий.
type Service interface {
	AssertCanCreateProject(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error)
	AssertCanCreateSurvey(ctx context.Context, session models.Session, userID, projectID string) (models.LimitCheck, error)
	AssertCanRecordMeasurement(ctx context.Context, session models.Session, userID, surveyID string, count int64) (models.LimitCheck, error)
	AssertCanUseAIInsights(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error)
	AssertCanExportHeatmap(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error)
	AssertCanRunSpeedTest(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Проверить действие
// @Description Проверяет, разрешено ли действие по лимитам эффективного плана. Ничего не записывает.
// @Tags Plan
// @Accept  json
// @Produce  json
// @Param action path string true "project | survey | measurement | ai_insight | heatmap | speed_test"
// @Param request body models.DummyGuard false "Контекст действия"
// @Success 200 {object} models.LimitCheck
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Неизвестное действие"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /plan/guard/{action} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.guard"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	session, ok := middlewarectx.SessionFrom(r.Context())
	if !ok {
		log.Error("session not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	var req models.DummyGuard
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	var (
		check models.LimitCheck
		err   error
	)
	ctx, userID := r.Context(), session.UserID
	switch action := chi.URLParam(r, "action"); action {
	case ActionProject:
		check, err = h.service.AssertCanCreateProject(ctx, session, userID)
	case ActionSurvey:
		check, err = h.service.AssertCanCreateSurvey(ctx, session, userID, req.ProjectID)
	case ActionMeasurement:
		count := req.Count
		if count < 1 {
			count = 1
		}
		check, err = h.service.AssertCanRecordMeasurement(ctx, session, userID, req.SurveyID, count)
	case ActionAIInsight:
		check, err = h.service.AssertCanUseAIInsights(ctx, session, userID)
	case ActionHeatmap:
		check, err = h.service.AssertCanExportHeatmap(ctx, session, userID)
	case ActionSpeedTest:
		check, err = h.service.AssertCanRunSpeedTest(ctx, session, userID)
	default:
		log.Error("unknown guard action", slog.String("action", action))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("unknown action"))
		return
	}

	switch {
	case errors.Is(err, plan.ErrUnauthorized):
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("forbidden"))
		return
	case errors.Is(err, tracking.ErrMissingProjectID):
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("project_id is required"))
		return
	case errors.Is(err, tracking.ErrMissingSurveyID):
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("survey_id is required"))
		return
	case err != nil:
		log.Error("failed to check action", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not check action"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(check))
}
