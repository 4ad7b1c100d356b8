package servers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	// writeWait bounds one frame write
	writeWait = 10 * time.Second

	// pingPeriod keeps idle connections alive through proxies
	pingPeriod = 30 * time.Second
)

// Live handles GET /servers/:id/live
//
// Upgrades to a WebSocket and streams the server's metric and incident
// events as JSON frames until the client disconnects. Each connection is
// an independent subscriber: a slow client loses events but never delays
// other subscribers or the publishers.
func (h *Handler) Live(c *gin.Context) {
	server, ok := h.loadServer(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade live stream connection")
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(server.ID)
	defer sub.Close()

	log.Debug().
		Str("server_id", server.ID.String()).
		Msg("Live stream subscriber connected")

	// Reader goroutine: we never expect client frames, but reading is
	// required to process control frames and notice disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Debug().
					Err(err).
					Str("server_id", server.ID.String()).
					Msg("Live stream write failed, closing")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
