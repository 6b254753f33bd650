// Package unread реализует административный HTTP-обработчик счётчика
// непрочитанных оповещений.
package unread

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
)

// Handler отдаёт число непрочитанных оповещений.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает подсчёт.
type Service interface {
	UnreadCount(ctx context.Context) (int64, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Число непрочитанных оповещений
// @Tags Admin
// @Produce  json
// @Success 200 {object} map[string]any "Число непрочитанных"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/alerts/unread [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.alerts.unread"
	n, err := h.service.UnreadCount(r.Context())
	if err != nil {
		h.log.Error("failed to count unread alerts",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not count unread alerts"))
		return
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"unread_count": n,
	}))
}
