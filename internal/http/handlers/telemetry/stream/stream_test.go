package stream

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/telemetry"
)

func TestStreamHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := telemetry.New(nil, "", 0, nil, logger)
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.Append(models.TelemetrySample{Source: "rsrp", Value: -100, At: at})

	srv := httptest.NewServer(New(logger, svc, nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first Frame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, FrameSnapshot, first.Type)
	require.Len(t, first.Snapshot["rsrp"], 1)
	assert.Equal(t, -100.0, first.Snapshot["rsrp"][0].Value)

	// Подписка оформляется до отправки снимка, поэтому точка не теряется.
	svc.Append(models.TelemetrySample{Source: "rsrp", Value: -97, At: at.Add(time.Second)})

	var next Frame
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, FrameSample, next.Type)
	require.NotNil(t, next.Sample)
	assert.Equal(t, -97.0, next.Sample.Value)
}

func TestStreamHandler_RejectsForeignOrigin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := telemetry.New(nil, "", 0, nil, logger)

	srv := httptest.NewServer(New(logger, svc, []string{"https://admin.example.com"}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
