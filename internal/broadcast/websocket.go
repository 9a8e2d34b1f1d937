package broadcast

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	maxMessageSize      = 4096
	DefaultPingInterval = 30 * time.Second
)

// WSConn adapts a websocket connection to Conn.
type WSConn struct {
	conn *websocket.Conn
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

func (w *WSConn) Send(ctx context.Context, msg Envelope) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.conn.WriteJSON(msg)
}

func (w *WSConn) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}

func (w *WSConn) ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// ServeWS registers conn with the hub and blocks until the peer goes away
// or ctx is cancelled. Client messages are read and discarded so control
// frames get processed.
func (h *Hub) ServeWS(ctx context.Context, conn *websocket.Conn, pingInterval time.Duration) {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}

	ws := NewWSConn(conn)
	sub := h.Connect(ws)
	defer h.Disconnect(sub)

	if err := h.Send(ctx, sub, MessageConnected, map[string]string{
		"subscriber_id": sub.ID,
		"message":       "WebSocket connection established",
	}); err != nil {
		h.logger.Debugf("Failed to greet subscriber %s: %v", sub.ID, err)
		return
	}

	readWait := pongWait
	if pingInterval >= readWait {
		readWait = pingInterval * 2
	}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debugf("Subscriber %s read error: %v", sub.ID, err)
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				h.logger.Debugf("Ping to subscriber %s failed: %v", sub.ID, err)
				return
			}
		}
	}
}
