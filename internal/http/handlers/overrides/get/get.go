// Package get реализует административный HTTP-обработчик чтения
// переопределения плана пользователя.
package get

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/overrides"
)

// Handler отдаёт переопределение.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает чтение переопределения.
type Service interface {
	Get(ctx context.Context, userID string) (*models.PlanOverride, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Переопределение плана
// @Tags Admin
// @Produce  json
// @Param userID path string true "Идентификатор пользователя"
// @Success 200 {object} models.PlanOverride
// @Failure 404 {object} response.ErrorResponse "Переопределения нет"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/overrides/{userID} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.overrides.get"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID := chi.URLParam(r, "userID")
	res, err := h.service.Get(r.Context(), userID)
	if err != nil {
		if overrides.IsNotFound(err) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("override not found"))
			return
		}
		log.Error("failed to get plan override", sl.UserID(userID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get plan override"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(res))
}
