package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const clientBuffer = 16

// hub tracks websocket subscribers per session. Writes to a connection go
// through the client's send channel so only the writer goroutine touches the
// socket.
type hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}
}

type client struct {
	send chan Notification
	once sync.Once
}

func newHub() *hub {
	return &hub{sessions: make(map[string]map[*client]struct{})}
}

func (h *hub) register(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[sessionID]
	if !ok {
		clients = make(map[*client]struct{})
		h.sessions[sessionID] = clients
	}
	clients[c] = struct{}{}
}

func (h *hub) unregister(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.sessions, sessionID)
	}
	c.close()
}

// broadcast delivers n to every subscriber of the session. A client whose
// buffer is full is skipped; streams are best effort and the next update
// supersedes the missed one.
func (h *hub) broadcast(sessionID string, n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.sessions[sessionID] {
		select {
		case c.send <- n:
		default:
		}
	}
}

func (h *hub) closeSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.sessions[sessionID] {
		c.close()
	}
	delete(h.sessions, sessionID)
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// stream upgrades the request to a websocket and pushes the session's
// notifications until the client disconnects or the session completes.
func (a *API) stream(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := a.sessions.GetSession(c.Request.Context(), sessionID); err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	cl := &client{send: make(chan Notification, clientBuffer)}
	a.hub.register(sessionID, cl)
	defer a.hub.unregister(sessionID, cl)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := range cl.send {
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session completed"))
	}()

	// Inbound frames are ignored; the read loop only detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	<-done
}
