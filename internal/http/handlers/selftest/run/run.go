// Package run реализует административный HTTP-обработчик прогона
// самопроверки учёта использования. Сценарии пишут тестовые события от
// имени вызывающего администратора и удаляют их после прогона.
package run

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// Handler запускает сценарии.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает прогон сценариев.
type Service interface {
	RunAll(ctx context.Context, admin models.Session) []models.TestResult
	Run(ctx context.Context, admin models.Session, ids []string) []models.TestResult
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
// @Summary Самопроверка учёта использования
// @Description Запускает сценарии (все, если список пуст) и возвращает результаты PASS/FAIL.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param request body models.DummyRunSelfTest false "Сценарии"
// @Success 200 {array} models.TestResult
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /admin/selftest [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.selftest.run"
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

	var req models.DummyRunSelfTest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
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

	var results []models.TestResult
	if len(req.IDs) == 0 {
		results = h.service.RunAll(r.Context(), admin)
	} else {
		results = h.service.Run(r.Context(), admin, req.IDs)
	}

	passed := 0
	for _, res := range results {
		if res.Status == models.TestPass {
			passed++
		}
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"results": results,
		"passed":  passed,
		"total":   len(results),
	}))
}
