package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Deadlines for the clock stream. Writes must comfortably beat the 1s tick
// cadence; reads only ever see occasional keepalive pings.
const (
	writeWait = 5 * time.Second
	readWait  = 10 * time.Minute
)

// WriteTyped sends one typed event frame, dropping the connection on a stall.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// WriteError sends a terminal error event. The caller closes the connection
// afterwards, so the write result is informational only.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON decodes the next client frame under the keepalive deadline. A
// client that sends nothing for the whole window is treated as gone.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
		return err
	}
	return conn.ReadJSON(v)
}
