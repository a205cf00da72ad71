package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport adapts a gorilla websocket connection to the Transport
// interface. The hub serializes writes, so no extra locking here beyond the
// write deadline.
type WSTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn, writeTimeout: 10 * time.Second}
}

func (t *WSTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *WSTransport) WriteMessage(data []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WSTransport) Close(code int, reason string) error {
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	return t.conn.Close()
}
