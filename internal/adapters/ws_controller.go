package adapters

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/core"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSController upgrades HTTP requests and pipes frames into the relay.
type WSController struct {
	Relay     *app.Relay
	ReadLimit int64
}

func NewWSController(relay *app.Relay, readLimit int64) *WSController {
	return &WSController{Relay: relay, ReadLimit: readLimit}
}

func (ctl *WSController) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "adapters.ws").Err(err).Msg("ws upgrade")
		return
	}

	id := core.ConnID(uuid.NewString())
	conn := NewWSConnection(id, ws)
	log.Info().Str("module", "adapters.ws").Str("conn", string(id)).Msg("new ws connection")

	// Transport-level pongs count as liveness activity too.
	ws.SetPongHandler(func(string) error {
		ctl.Relay.Touch(id)
		return nil
	})

	ctl.Relay.OnConnect(id, conn)
	conn.StartWriteLoop(ctx)
	go ctl.readPump(ctx, id, ws, conn)
}

func (ctl *WSController) readPump(ctx context.Context, id core.ConnID, ws WSConn, conn *WSConnection) {
	defer func() {
		ctl.Relay.OnDisconnect(id)
		conn.Close()
	}()

	if rl, ok := ws.(*websocket.Conn); ok && ctl.ReadLimit > 0 {
		rl.SetReadLimit(ctl.ReadLimit)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := ws.ReadMessage()
			if err != nil {
				log.Debug().Str("module", "adapters.ws").Str("conn", string(id)).Err(err).Msg("read loop closed")
				return
			}
			ctl.Relay.OnMessage(id, data)
		}
	}
}
