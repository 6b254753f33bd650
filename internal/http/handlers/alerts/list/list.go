// Package list реализует административный HTTP-обработчик ленты
// оповещений администраторов.
package list

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// Handler отдаёт последние оповещения.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает чтение ленты.
type Service interface {
	Recent(ctx context.Context, limit, sinceDays int, unreadOnly bool) ([]models.Alert, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Оповещения администраторов
// @Tags Admin
// @Produce  json
// @Param limit query int false "Максимум записей (по умолчанию 50)"
// @Param since_days query int false "Глубина в днях (по умолчанию 7)"
// @Param unread_only query bool false "Только непрочитанные"
// @Success 200 {array} models.Alert
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/alerts [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.alerts.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("limit must be an integer"))
		return
	}
	sinceDays, err := intParam(q.Get("since_days"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("since_days must be an integer"))
		return
	}
	unreadOnly := false
	if raw := q.Get("unread_only"); raw != "" {
		if unreadOnly, err = strconv.ParseBool(raw); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("unread_only must be a boolean"))
			return
		}
	}

	res, err := h.service.Recent(r.Context(), limit, sinceDays, unreadOnly)
	if err != nil {
		log.Error("failed to list admin alerts", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list admin alerts"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"alerts": res,
	}))
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
