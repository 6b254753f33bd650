// Package purge реализует административный HTTP-обработчик удаления событий
// использования пользователя. С параметром test_only=true удаляются только
// тестовые события.
package purge

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
)

// Handler удаляет журнал использования пользователя.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает удаление событий.
type Service interface {
	PurgeUsageEvents(ctx context.Context, userID string) (int64, error)
	DeleteTestUsageEvents(ctx context.Context, userID string) (int64, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Удалить события использования
// @Description Удаляет события пользователя. test_only=true ограничивает удаление тестовыми событиями.
// @Tags Admin
// @Produce  json
// @Param userID path string true "Идентификатор пользователя"
// @Param test_only query bool false "Только тестовые события"
// @Success 200 {object} map[string]any "Число удалённых событий"
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/usage/{userID} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.usage.purge"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		log.Error("empty user id in url")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("user id is required"))
		return
	}

	testOnly := false
	if raw := r.URL.Query().Get("test_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			log.Error("failed to parse test_only", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("test_only must be a boolean"))
			return
		}
		testOnly = v
	}

	var (
		deleted int64
		err     error
	)
	if testOnly {
		deleted, err = h.service.DeleteTestUsageEvents(r.Context(), userID)
	} else {
		deleted, err = h.service.PurgeUsageEvents(r.Context(), userID)
	}
	if err != nil {
		log.Error("failed to delete usage events", sl.UserID(userID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not delete usage events"))
		return
	}

	log.Info("usage events deleted", sl.UserID(userID), slog.Int64("deleted", deleted), slog.Bool("test_only", testOnly))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"deleted_count": deleted,
	}))
}
