package chat

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const wsWriteWait = 10 * time.Second

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler lets browser clients join a channel over HTTP. Each text
// frame a client sends is relayed like a line on the TCP listener, and every
// broadcast on the channel is delivered as one text frame.
type WebSocketHandler struct {
	hub    *Hub
	logger zerolog.Logger

	mu     sync.Mutex
	conns  map[*gorillawebsocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewWebSocketHandler creates a handler bound to hub.
func NewWebSocketHandler(hub *Hub, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
		conns:  make(map[*gorillawebsocket.Conn]struct{}),
	}
}

// RegisterRoutes registers GET /:channel?identity=<name> on g.
func (h *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/:channel", h.HandleConnect)
}

// HandleConnect upgrades the request, joins the client to the channel and
// starts its read pump.
func (h *WebSocketHandler) HandleConnect(c echo.Context) error {
	channel := strings.TrimSpace(c.Param("channel"))
	identity := strings.TrimSpace(c.QueryParam("identity"))
	if channel == "" || identity == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "channel and identity are required")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	if !h.track(ws) {
		ws.Close()
		return nil
	}

	m := NewMember(identity, &frameWriter{conn: ws})
	h.hub.Join(channel, m)
	go h.readPump(channel, m, ws)
	return nil
}

// Close disconnects every websocket client and waits for their pumps to exit.
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	h.closed = true
	for ws := range h.conns {
		ws.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// ClientCount returns the number of connected websocket clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *WebSocketHandler) track(ws *gorillawebsocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[ws] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *WebSocketHandler) readPump(channel string, m *Member, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Leave(channel, m)
		ws.Close()
		h.mu.Lock()
		delete(h.conns, ws)
		h.mu.Unlock()
		h.wg.Done()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if !gorillawebsocket.IsCloseError(err, gorillawebsocket.CloseNormalClosure, gorillawebsocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("identity", m.Identity).Msg("websocket read ended")
			}
			return
		}
		for _, line := range strings.Split(strings.TrimRight(string(message), "\r\n"), "\n") {
			h.hub.Say(channel, m, strings.TrimSuffix(line, "\r"))
		}
	}
}

// frameWriter adapts a websocket connection to the io.Writer a Member
// broadcasts to. Each Write becomes one text frame without its newline.
type frameWriter struct {
	mu   sync.Mutex
	conn *gorillawebsocket.Conn
}

func (w *frameWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := w.conn.WriteMessage(gorillawebsocket.TextMessage, bytes.TrimSuffix(p, []byte("\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
