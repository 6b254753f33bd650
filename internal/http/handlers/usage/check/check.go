// Package check реализует HTTP-обработчик проверки лимита без записи события.
package check

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
)

// Handler проверяет, уложится ли действие в лимит плана.
type Handler struct {
	log      *slog.Logger
	service  Service
	plans    PlanResolver
	validate *validator.Validate
}

// Service описывает проверку лимита.
type Service interface {
	CheckUsageLimit(ctx context.Context, p tracking.CheckParams) (models.LimitCheck, error)
}

// PlanResolver определяет эффективный план владельца сессии.
type PlanResolver interface {
	EffectivePlan(ctx context.Context, session models.Session) (models.PlanID, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service, plans PlanResolver) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		plans:    plans,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Проверить лимит
// @Description Сравнивает текущее использование плюс additional_count с лимитом эффективного плана.
// @Tags Usage
// @Accept  json
// @Produce  json
// @Param request body models.DummyCheckLimit true "Параметры проверки"
// @Success 200 {object} models.LimitCheck
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /usage/check [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.usage.check"
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

	var req models.DummyCheckLimit
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
	limitType := models.LimitType(req.LimitType)
	if !limitType.Valid() {
		log.Error("unknown limit type", slog.String("limit_type", req.LimitType))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("unknown limit type"))
		return
	}

	planID, err := h.plans.EffectivePlan(r.Context(), session)
	if err != nil {
		log.Error("failed to resolve plan", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not resolve plan"))
		return
	}

	res, err := h.service.CheckUsageLimit(r.Context(), tracking.CheckParams{
		UserID:          session.UserID,
		PlanID:          planID,
		LimitType:       limitType,
		ProjectID:       req.ProjectID,
		SurveyID:        req.SurveyID,
		AdditionalCount: int64(req.AdditionalCount),
	})
	if err != nil {
		if errors.Is(err, tracking.ErrValidation) {
			log.Error("invalid limit check", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(validationMessage(err)))
			return
		}
		log.Error("failed to check usage limit", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not check usage limit"))
		return
	}

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
