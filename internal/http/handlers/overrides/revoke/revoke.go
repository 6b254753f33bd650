// Package revoke реализует административный HTTP-обработчик снятия
// переопределения плана.
package revoke

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
)

// Handler снимает переопределение.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает снятие переопределения.
type Service interface {
	Revoke(ctx context.Context, userID string) (bool, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Снять переопределение плана
// @Tags Admin
// @Produce  json
// @Param userID path string true "Идентификатор пользователя"
// @Success 200 {object} map[string]any "Было ли переопределение"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/overrides/{userID} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.overrides.revoke"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID := chi.URLParam(r, "userID")
	deleted, err := h.service.Revoke(r.Context(), userID)
	if err != nil {
		log.Error("failed to revoke plan override", sl.UserID(userID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not revoke plan override"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"revoked": deleted,
	}))
}
