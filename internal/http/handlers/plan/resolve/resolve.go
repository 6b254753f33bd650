// Package resolve реализует HTTP-обработчик получения плана пользователя.
//
// По умолчанию план вычисляется для владельца сессии. Параметр user_id
// допускается только совпадающим с сессией, иначе возвращается 403.
package resolve

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/plan"
)

// Handler отдаёт вычисленный план.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает вычисление плана.
type Service interface {
	ResolveUserPlan(ctx context.Context, session models.Session, userID string) (models.ResolvedPlan, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary План пользователя
// @Description Возвращает базовый план, переопределение, биллинговую фазу и эффективный план.
// @Tags Plan
// @Produce  json
// @Param user_id query string false "Идентификатор пользователя (только свой)"
// @Success 200 {object} models.ResolvedPlan
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Чужой пользователь"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /plan [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.resolve"
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

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = session.UserID
	}

	res, err := h.service.ResolveUserPlan(r.Context(), session, userID)
	if err != nil {
		if errors.Is(err, plan.ErrUnauthorized) {
			log.Warn("plan requested for another user", sl.UserID(session.UserID), slog.String("target", userID))
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("forbidden"))
			return
		}
		log.Error("failed to resolve plan", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not resolve plan"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(res))
}
