// Package grant реализует административный HTTP-обработчик выдачи плана
// пользователю. Выдача FREE снимает переопределение.
package grant

import (
	"context"
	"errors"
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
	"github.com/magabrotheeeer/goflexconnect/internal/services/overrides"
)

// Handler выдаёт план.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает выдачу плана.
type Service interface {
	Grant(ctx context.Context, admin models.Session, p overrides.GrantParams) (*models.PlanOverride, error)
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
// @Summary Выдать план пользователю
// @Description Создаёт или заменяет переопределение. plan_id=FREE снимает переопределение.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param userID path string true "Идентификатор пользователя"
// @Param request body models.DummyPlanOverride true "Переопределение"
// @Success 200 {object} models.PlanOverride
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/overrides/{userID} [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.overrides.grant"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	admin, ok := middlewarectx.SessionFrom(r.Context())
	if !ok {
		log.Error("session not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	var req models.DummyPlanOverride
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

	userID := chi.URLParam(r, "userID")
	res, err := h.service.Grant(r.Context(), admin, overrides.GrantParams{
		UserID:    userID,
		Plan:      req.PlanID,
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(msg))
			return
		}
		log.Error("failed to grant plan", sl.UserID(userID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not grant plan"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"override": res,
	}))
}

func validationMessage(err error) (string, bool) {
	for _, target := range []error{overrides.ErrEmptyUserID, overrides.ErrInvalidPlan, overrides.ErrExpiresInPast} {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}
