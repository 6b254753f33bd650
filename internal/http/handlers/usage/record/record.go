// Package record реализует HTTP-обработчик записи использования.
//
// Handler принимает событие использования, определяет эффективный план
// пользователя, проверяет лимит и записывает событие. Ответ всегда содержит
// результат проверки; отказ по лимиту возвращается со статусом 200 и
// allowed=false, решение о блокировке действия принимает клиент.
package record

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/goflexconnect/internal/cache"
	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
	"github.com/magabrotheeeer/goflexconnect/internal/services/usage"
)

// Handler обрабатывает запись события использования.
type Handler struct {
	log      *slog.Logger
	service  Service
	plans    PlanResolver
	isAdmin  func(models.Session) bool
	validate *validator.Validate
}

// Service описывает оркестрацию проверки и записи.
type Service interface {
	RecordUsageAndCheckLimit(ctx context.Context, p usage.RecordParams) (models.UsageCheckResult, error)
}

// PlanResolver определяет эффективный план владельца сессии.
type PlanResolver interface {
	EffectivePlan(ctx context.Context, session models.Session) (models.PlanID, error)
}

// New создает новый Handler. Флаг is_test учитывается только для сессий,
// которые isAdmin признает административными.
func New(log *slog.Logger, service Service, plans PlanResolver, isAdmin func(models.Session) bool) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		plans:    plans,
		isAdmin:  isAdmin,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Записать использование
// @Description Проверяет лимит плана и записывает событие использования. Отказ по лимиту не является ошибкой. Флаг is_test принимается только от администратора.
// @Tags Usage
// @Accept  json
// @Produce  json
// @Param request body models.DummyRecordUsage true "Событие использования"
// @Success 200 {object} models.UsageCheckResult
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Параллельная запись, повторите запрос"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /usage/record [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.usage.record"
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

	var req models.DummyRecordUsage
	if err := render.DecodeJSON(r.Body, &req); err != nil {
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
	eventType := models.EventType(req.EventType)
	if !eventType.Valid() {
		log.Error("unknown event type", slog.String("event_type", req.EventType))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("unknown event type"))
		return
	}

	isTest := req.IsTest && h.isAdmin != nil && h.isAdmin(session)
	if req.IsTest && !isTest {
		log.Warn("is_test ignored for non-admin session", sl.UserID(session.UserID))
	}

	planID, err := h.plans.EffectivePlan(r.Context(), session)
	if err != nil {
		log.Error("failed to resolve plan", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not resolve plan"))
		return
	}

	res, err := h.service.RecordUsageAndCheckLimit(r.Context(), usage.RecordParams{
		UserID:    session.UserID,
		UserEmail: session.Email,
		PlanID:    planID,
		EventType: eventType,
		Context: models.UsageContext{
			ProjectID: req.ProjectID,
			SurveyID:  req.SurveyID,
			Count:     req.Count,
		},
		IsTest: isTest,
	})
	switch {
	case errors.Is(err, tracking.ErrValidation):
		log.Error("invalid usage context", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error(validationMessage(err)))
		return
	case errors.Is(err, cache.ErrLockNotAcquired):
		log.Warn("concurrent usage update", sl.Err(err))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("concurrent usage update, retry"))
		return
	case err != nil:
		log.Error("failed to record usage", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not record usage"))
		return
	}

	log.Info("usage recorded", sl.UserID(session.UserID), slog.Bool("allowed", res.Allowed))
	render.JSON(w, r, response.StatusOKWithData(res))
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, tracking.ErrMissingProjectID):
		return "project_id is required"
	case errors.Is(err, tracking.ErrMissingSurveyID):
		return "survey_id is required"
	}
	return "invalid usage event"
}
