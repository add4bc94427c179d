// Package upgrade adapts the teacher's WebSocket peer (websocket.go) into
// a helper a content callback can call directly: it takes over the
// connection via gorilla/websocket and hands back a peer with the same
// text/binary/close/ping/pong handler shape.
package upgrade

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket is a connected WebSocket peer.
type WebSocket struct {
	TextHandler            func(text string) error
	BinaryHandler          func(b []byte) error
	ConnectionCloseHandler func(statusCode int, reason string) error
	PingHandler            func(appData string) error
	PongHandler            func(appData string) error
	ErrorHandler           func(err error)

	conn   *websocket.Conn
	closed bool
}

// Upgrade takes over the HTTP connection behind w/r and returns a
// WebSocket peer, negotiating subprotocols (first of the caller's and the
// client's overlap wins, matching the teacher's negotiation rule) and
// bounding the handshake by handshakeTimeout.
func Upgrade(w http.ResponseWriter, r *http.Request, subprotocols []string, handshakeTimeout time.Duration) (*WebSocket, error) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     subprotocols,
		CheckOrigin:      func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	ws := &WebSocket{conn: conn}

	conn.SetCloseHandler(func(code int, text string) error {
		if ws.ConnectionCloseHandler != nil {
			return ws.ConnectionCloseHandler(code, text)
		}
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		if ws.PingHandler != nil {
			return ws.PingHandler(appData)
		}
		return nil
	})
	conn.SetPongHandler(func(appData string) error {
		if ws.PongHandler != nil {
			return ws.PongHandler(appData)
		}
		return nil
	})

	return ws, nil
}

// Serve reads messages from the peer until it closes or errors,
// dispatching to TextHandler/BinaryHandler as appropriate. It blocks;
// call it from within the content callback that performed the upgrade.
func (ws *WebSocket) Serve() {
	for !ws.closed {
		mt, b, err := ws.conn.ReadMessage()
		if err != nil {
			if ws.ErrorHandler != nil {
				ws.ErrorHandler(err)
			}
			return
		}

		switch mt {
		case websocket.TextMessage:
			if ws.TextHandler != nil {
				if err := ws.TextHandler(string(b)); err != nil && ws.ErrorHandler != nil {
					ws.ErrorHandler(err)
				}
			}
		case websocket.BinaryMessage:
			if ws.BinaryHandler != nil {
				if err := ws.BinaryHandler(b); err != nil && ws.ErrorHandler != nil {
					ws.ErrorHandler(err)
				}
			}
		}
	}
}

// Close closes the peer without sending or waiting for a close message.
func (ws *WebSocket) Close() error {
	ws.closed = true
	return ws.conn.Close()
}

// WriteText writes a text message to the peer.
func (ws *WebSocket) WriteText(text string) error {
	return ws.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// WriteBinary writes a binary message to the peer.
func (ws *WebSocket) WriteBinary(b []byte) error {
	return ws.conn.WriteMessage(websocket.BinaryMessage, b)
}

// WriteConnectionClose writes a close message with statusCode and reason.
func (ws *WebSocket) WriteConnectionClose(statusCode int, reason string) error {
	return ws.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(statusCode, reason))
}

// WritePing writes a ping message.
func (ws *WebSocket) WritePing(appData string) error {
	return ws.conn.WriteMessage(websocket.PingMessage, []byte(appData))
}

// WritePong writes a pong message.
func (ws *WebSocket) WritePong(appData string) error {
	return ws.conn.WriteMessage(websocket.PongMessage, []byte(appData))
}
