package wsrpc

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Timing constants mirror the teacher's internal/hub/client.go exactly:
// ping/pong keepalive and write-deadline values for a single connection.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16
)

// conn is one live WebSocket connection. Outgoing frames queue on send;
// ReadPump/WritePump are the goroutine pair that move bytes to and from
// the socket, exactly like the teacher's Client.ReadPump/WritePump.
type conn struct {
	id     string
	ws     *websocket.Conn
	server *Server
	send   chan []byte
}

func newConn(id string, ws *websocket.Conn, server *Server) *conn {
	return &conn{id: id, ws: ws, server: server, send: make(chan []byte, 256)}
}

// Run starts the read and write pumps. Returns once ReadPump exits (on
// close or read error); the caller is expected to have already
// registered the connection with the Server before calling Run.
func (c *conn) Run() {
	go c.writePump()
	c.readPump()
}

func (c *conn) readPump() {
	logCtx := logrus.WithField("connection_id", c.id)
	defer func() {
		c.server.handleDisconnect(c)
		c.ws.Close()
		logCtx.Info("wsrpc: readPump exited")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("wsrpc: unexpected close")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.server.handleIncoming(c, message)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("connection_id", c.id).WithError(err).Warn("wsrpc: write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue pushes a frame onto the connection's send channel without
// blocking; a full channel means a stuck writer, and the frame is dropped
// rather than stalling the broadcaster.
func (c *conn) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
