package monitor

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// safeConn serializes writes to a websocket connection.
type safeConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_ = sc.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return sc.Conn.WriteJSON(v)
}

// Hub fans events out to connected websocket clients.
type Hub struct {
	log *zap.Logger

	mu     sync.Mutex
	conns  map[*safeConn]struct{}
	closed bool
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{log: log, conns: make(map[*safeConn]struct{})}
}

// Serve upgrades the request, sends hello and then blocks reading from the
// client until it disconnects. Client messages are ignored.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, hello interface{}) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	sc := &safeConn{Conn: conn}
	defer conn.Close()

	if hello != nil {
		if err := sc.WriteJSON(hello); err != nil {
			h.log.Debug("websocket hello", zap.Error(err))
			return
		}
	}
	if !h.add(sc) {
		return
	}
	defer h.remove(sc)
	h.log.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) add(sc *safeConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[sc] = struct{}{}
	return true
}

func (h *Hub) remove(sc *safeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, sc)
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast writes v to every client. Clients whose write fails are closed
// and dropped.
func (h *Hub) Broadcast(v interface{}) {
	h.mu.Lock()
	conns := make([]*safeConn, 0, len(h.conns))
	for sc := range h.conns {
		conns = append(conns, sc)
	}
	h.mu.Unlock()

	for _, sc := range conns {
		if err := sc.WriteJSON(v); err != nil {
			h.log.Debug("websocket write", zap.Error(err))
			h.remove(sc)
			_ = sc.Close()
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := h.conns
	h.conns = make(map[*safeConn]struct{})
	h.mu.Unlock()

	for sc := range conns {
		sc.writeMu.Lock()
		_ = sc.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
			time.Now().Add(wsWriteTimeout))
		sc.writeMu.Unlock()
		_ = sc.Close()
	}
}
