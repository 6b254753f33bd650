// Package testemail реализует административный HTTP-обработчик отправки
// тестового письма администраторам через очередь оповещений.
package testemail

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// Handler поднимает тестовое оповещение.
type Handler struct {
	log        *slog.Logger
	service    Service
	recipients int
}

// Service описывает тестовое оповещение.
type Service interface {
	RaiseTestEmail(ctx context.Context, triggeredBy string, recipients int) models.Alert
}

// New создает новый Handler. recipients число адресов администраторов.
func New(log *slog.Logger, service Service, recipients int) *Handler {
	return &Handler{
		log:        log,
		service:    service,
		recipients: recipients,
	}
}

// ServeHTTP godoc
// @Summary Тестовое письмо администраторам
// @Description Поднимает оповещение test_email; письмо отправит alert-sender.
// @Tags Admin
// @Produce  json
// @Success 202 {object} models.Alert
// @Failure 409 {object} response.ErrorResponse "Адреса администраторов не настроены"
// @Router /admin/alerts/test-email [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.alerts.testemail"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if h.recipients == 0 {
		log.Warn("no admin recipients configured")
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("no admin recipients configured"))
		return
	}

	triggeredBy := "Admin Dashboard"
	if admin, ok := middlewarectx.SessionFrom(r.Context()); ok && admin.Email != "" {
		triggeredBy = admin.Email
	}
	alert := h.service.RaiseTestEmail(r.Context(), triggeredBy, h.recipients)

	log.Info("test email requested", slog.String("alert_id", alert.ID))
	w.WriteHeader(http.StatusAccepted)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"alert": alert,
	}))
}
