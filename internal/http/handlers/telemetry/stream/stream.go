// Package stream реализует websocket-поток живой телеметрии для панели
// администратора. Первым кадром отправляется снимок истории, затем каждая
// новая точка. Медленный клиент теряет точки, соединение не блокирует
// остальных подписчиков.
package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/gorilla/websocket"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// Типы кадров.
const (
	FrameSnapshot = "snapshot"
	FrameSample   = "sample"
)

// Frame кадр потока.
type Frame struct {
	Type     string                              `json:"type"`
	Snapshot map[string][]models.TelemetrySample `json:"snapshot,omitempty"`
	Sample   *models.TelemetrySample             `json:"sample,omitempty"`
}

// Service описывает источник телеметрии.
type Service interface {
	Snapshot() map[string][]models.TelemetrySample
	Subscribe() (<-chan models.TelemetrySample, func())
}

// Handler раздаёт поток телеметрии.
type Handler struct {
	log      *slog.Logger
	service  Service
	upgrader websocket.Upgrader
}

// New создает новый Handler. Пустой allowedOrigins или "*" разрешает все источники.
func New(log *slog.Logger, service Service, allowedOrigins []string) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		upgrader: makeUpgrader(allowedOrigins),
	}
}

func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return originSet[origin]
		},
	}
}

// ServeHTTP godoc
// @Summary Поток телеметрии
// @Description Websocket. Токен сессии передаётся в заголовке Authorization или параметре token.
// @Tags Admin
// @Param token query string false "JWT сессии"
// @Success 101 {object} stream.Frame
// @Router /admin/telemetry/ws [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.telemetry.stream"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту.
		log.Error("failed to upgrade connection", sl.Err(err))
		return
	}
	defer conn.Close()

	samples, cancel := h.service.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go readLoop(conn, stop)

	if err := write(conn, Frame{Type: FrameSnapshot, Snapshot: h.service.Snapshot()}); err != nil {
		log.Warn("failed to send snapshot", sl.Err(err))
		return
	}
	log.Info("telemetry stream opened")

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("telemetry stream closed by client")
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			if err := write(conn, Frame{Type: FrameSample, Sample: &sample}); err != nil {
				log.Warn("failed to send sample", sl.Err(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func write(conn *websocket.Conn, frame Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}

// readLoop читает управляющие кадры и сообщает о закрытии соединения.
func readLoop(conn *websocket.Conn, stop context.CancelFunc) {
	defer stop()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
