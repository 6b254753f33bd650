// Package list реализует административный HTTP-обработчик списка
// переопределений планов.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// Handler отдаёт все переопределения.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает получение списка.
type Service interface {
	List(ctx context.Context) ([]models.PlanOverride, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список переопределений планов
// @Description Все переопределения, включая истёкшие.
// @Tags Admin
// @Produce  json
// @Success 200 {array} models.PlanOverride
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/overrides [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.overrides.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	res, err := h.service.List(r.Context())
	if err != nil {
		log.Error("failed to list plan overrides", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list plan overrides"))
		return
	}

	log.Info("plan overrides listed", slog.Int("count", len(res)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"overrides": res,
	}))
}
