// Package update реализует административный HTTP-обработчик смены
// биллинговой фазы.
package update

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
	"github.com/magabrotheeeer/goflexconnect/internal/services/billing"
)

// Handler меняет фазу.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает смену фазы.
type Service interface {
	Update(ctx context.Context, upd models.BillingPhaseUpdate) (models.BillingPhaseInfo, error)
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
// @Summary Сменить биллинговую фазу
// @Description Меняет фазу. При переходе в NOTICE без параметров период стартует сейчас и длится 14 дней.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param request body models.BillingPhaseUpdate true "Новая фаза"
// @Success 200 {object} models.BillingPhaseInfo
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/billing/phase [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.update"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.BillingPhaseUpdate
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

	res, err := h.service.Update(r.Context(), req)
	switch {
	case errors.Is(err, billing.ErrInvalidPhase):
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("phase must be one of BETA_FREE, NOTICE, PAID_LIVE"))
		return
	case errors.Is(err, billing.ErrInvalidNoticeDays):
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("notice_days must be positive"))
		return
	case err != nil:
		log.Error("failed to update billing phase", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not update billing phase"))
		return
	}

	admin, _ := middlewarectx.SessionFrom(r.Context())
	log.Info("billing phase changed", sl.UserID(admin.UserID), slog.String("phase", string(res.Phase)))
	render.JSON(w, r, response.StatusOKWithData(res))
}
