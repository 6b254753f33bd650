// Package phase реализует HTTP-обработчик получения текущей биллинговой фазы.
package phase

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// Handler отдаёт фазу и обратный отсчёт до активации оплаты.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает чтение фазы.
type Service interface {
	Info(ctx context.Context) models.BillingPhaseInfo
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Биллинговая фаза
// @Description Текущая фаза, дата активации и число дней до неё. При недоступном хранилище отдаётся BETA_FREE.
// @Tags Billing
// @Produce  json
// @Success 200 {object} models.BillingPhaseInfo
// @Router /billing/phase [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.StatusOKWithData(h.service.Info(r.Context())))
}
