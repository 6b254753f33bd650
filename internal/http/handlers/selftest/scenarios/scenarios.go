// Package scenarios реализует административный HTTP-обработчик списка
// сценариев самопроверки.
package scenarios

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/services/selftest"
)

// Handler отдаёт список сценариев.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает каталог сценариев.
type Service interface {
	Scenarios() []selftest.Scenario
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Сценарии самопроверки
// @Tags Admin
// @Produce  json
// @Success 200 {array} selftest.Scenario
// @Router /admin/selftest [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"scenarios": h.service.Scenarios(),
	}))
}
