// Package snapshot реализует административный HTTP-обработчик истории
// живой телеметрии.
package snapshot

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// Handler отдаёт историю по всем источникам.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает снимок истории.
type Service interface {
	Snapshot() map[string][]models.TelemetrySample
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary История телеметрии
// @Description Последние точки по каждому источнику (не больше размера истории).
// @Tags Admin
// @Produce  json
// @Success 200 {object} map[string][]models.TelemetrySample
// @Router /admin/telemetry [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"sources": h.service.Snapshot(),
	}))
}
