package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/goflexconnect/internal/http/response"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// AdminChecker решает, является ли владелец сессии администратором.
type AdminChecker func(session models.Session) bool

// AdminOnly пропускает запрос дальше только для администраторов.
// Должен стоять после JWTMiddleware.
func AdminOnly(isAdmin AdminChecker, log *slog.Logger) func(http.Handler) http.Handler {
	if isAdmin == nil {
		isAdmin = models.Session.IsAdmin
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AdminOnly"

			session, ok := SessionFrom(r.Context())
			if !ok {
				log.Error("session not found in context", slog.String("op", op))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}
			if !isAdmin(session) {
				log.Warn("admin access denied",
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					sl.UserID(session.UserID),
				)
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
