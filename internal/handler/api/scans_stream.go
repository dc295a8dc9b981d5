package api

import (
	"net/http"
	"time"

	"SignalScan/internal/domain/models"
	xlogger "SignalScan/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// StreamConfig tunes the progress websocket.
type StreamConfig struct {
	Buffer         int           // per-connection progress buffer
	StatusInterval time.Duration // periodic status frames
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = 2 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Stream upgrades to a websocket and pushes a status frame followed by progress
// frames as the running scan advances, plus a status frame every StatusInterval.
func (h *ScansEchoHandler) Stream(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	progress, unsubscribe := h.session.Subscribe(h.stream.Buffer)
	defer unsubscribe()

	// the read loop only exists to notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg models.StreamMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(h.stream.WriteTimeout))
		return conn.WriteJSON(msg)
	}

	if err := write(models.StreamMessage{Type: "status", Data: h.session.Status()}); err != nil {
		return nil
	}

	statusTick := time.NewTicker(h.stream.StatusInterval)
	defer statusTick.Stop()
	pingTick := time.NewTicker(h.stream.PingInterval)
	defer pingTick.Stop()

	for {
		select {
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case p, ok := <-progress:
			if !ok {
				return nil
			}
			if err := write(models.StreamMessage{Type: "progress", Data: p}); err != nil {
				h.logger.Debug("websocket write failed", xlogger.Error(err))
				return nil
			}
		case <-statusTick.C:
			if err := write(models.StreamMessage{Type: "status", Data: h.session.Status()}); err != nil {
				return nil
			}
		case <-pingTick.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.stream.WriteTimeout)); err != nil {
				return nil
			}
		}
	}
}
