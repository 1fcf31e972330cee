package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/ma99us/MikeDB/lib/hub"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/maruel/ksid"
)

var Logger = logger.GetLogger("transport/ws")

const (
	// maxMessageBytes bounds one inbound text message
	maxMessageBytes = 1 << 20
	writeTimeout    = 10 * time.Second
)

// Handler upgrades GET requests to WebSocket connections and runs the subscriber
// protocol of hub on them. The database name is taken from the "db" path value.
type Handler struct {
	ctx      context.Context
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewHandler creates the upgrade handler. Connections are closed when ctx is done.
func NewHandler(ctx context.Context, h *hub.Hub) *Handler {
	return &Handler{
		ctx: ctx,
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the REST api allows every origin as well, the API key is the gate
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dbName := r.PathValue("db")
	if err := store.ValidateDBName(dbName); err != nil || store.IsConfigDB(dbName) {
		http.Error(w, "Bad database name", http.StatusBadRequest)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the request
		Logger.Warningf("websocket upgrade to %s failed: %v", dbName, err)
		return
	}
	c := newConn(wsConn)
	Logger.Debugf("connection %s from %s for %s", c.ID(), r.RemoteAddr, dbName)

	if err := h.hub.Serve(h.ctx, c, dbName); err != nil {
		Logger.Debugf("connection %s ended: %v", c.ID(), err)
	}
}

// --------------------------------------------------------------------------
// Connection adapter (implements hub.Conn)
// --------------------------------------------------------------------------

type conn struct {
	ws *websocket.Conn
	id string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newConn(ws *websocket.Conn) *conn {
	ws.SetReadLimit(maxMessageBytes)
	return &conn{ws: ws, id: newConnID()}
}

// newConnID returns a sortable, unique connection identity
func newConnID() string { return ksid.NewID().String() }

func (c *conn) ID() string { return c.id }

// ReadMessage returns the next text or binary message
func (c *conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// WriteMessage sends a text message. gorilla connections allow a single writer,
// so writes are serialized.
func (c *conn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame, best effort, and closes the connection once
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
