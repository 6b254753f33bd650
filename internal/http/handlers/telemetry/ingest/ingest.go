// Package ingest реализует HTTP-обработчик приёма точки телеметрии от
// клиента. Точка публикуется в канал Redis и попадает в историю всех
// экземпляров сервиса.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/telemetry"
)

// Handler принимает точки телеметрии.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает публикацию точки.
type Service interface {
	Publish(ctx context.Context, sample models.TelemetrySample) error
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
// @Summary Отправить точку телеметрии
// @Tags Telemetry
// @Accept  json
// @Produce  json
// @Param request body models.DummyTelemetrySample true "Точка"
// @Success 202 {object} map[string]any "Точка принята"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 503 {object} response.ErrorResponse "Канал недоступен"
// @Router /telemetry [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.telemetry.ingest"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyTelemetrySample
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

	sample := models.TelemetrySample{Source: req.Source, Value: req.Value}
	if req.At != nil {
		sample.At = req.At.UTC()
	}
	if err := h.service.Publish(r.Context(), sample); err != nil {
		if errors.Is(err, telemetry.ErrInvalidSample) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("source is required"))
			return
		}
		log.Error("failed to publish telemetry sample", sl.Err(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("telemetry channel unavailable"))
		return
	}

	w.WriteHeader(http.StatusAccepted)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"accepted": true,
	}))
}
