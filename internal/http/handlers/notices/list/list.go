// Package list реализует HTTP-обработчик получения уведомлений о
// приближении к лимитам для конкретного экрана клиента.
package list

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

// Handler отдаёт уведомления.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает подбор уведомлений.
type Service interface {
	Notices(ctx context.Context, session models.Session, nc models.NoticeContext) ([]models.Notice, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Уведомления о лимитах
// @Description Возвращает уведомления для экрана type (dashboard, project, survey, ai_insights, heatmap).
// @Tags Notices
// @Produce  json
// @Param type query string true "Экран клиента"
// @Param project_id query string false "Проект (для type=project)"
// @Param survey_id query string false "Опрос (для type=survey)"
// @Success 200 {array} models.Notice
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /notices [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.notices.list"
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

	q := r.URL.Query()
	nc := models.NoticeContext{
		Type:      models.NoticeContextType(q.Get("type")),
		ProjectID: q.Get("project_id"),
		SurveyID:  q.Get("survey_id"),
	}
	switch {
	case nc.Type == "":
		nc.Type = models.NoticeDashboard
	case nc.Type == models.NoticeProject && nc.ProjectID == "":
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("project_id is required"))
		return
	case nc.Type == models.NoticeSurvey && nc.SurveyID == "":
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("survey_id is required"))
		return
	}

	res, err := h.service.Notices(r.Context(), session, nc)
	if err != nil {
		if errors.Is(err, plan.ErrUnauthorized) {
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("forbidden"))
			return
		}
		log.Error("failed to build notices", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not build notices"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"notices": res,
	}))
}
