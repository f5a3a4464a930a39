package gateway

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// client pumps frames between one websocket connection and its session.
type client struct {
	conn    *websocket.Conn
	session *session
	send    chan []byte
}

func newClient(conn *websocket.Conn, s *session) *client {
	return &client{conn: conn, session: s, send: make(chan []byte, sendBuffer)}
}

func (c *client) run() {
	go c.writePump()
	c.readPump()
}

// enqueue hands a frame to the write pump, dropping it if the client
// cannot keep up. Dropped frames are safe: snapshots and rosters are full
// replacements, so the next one repairs the view.
func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		logrus.WithFields(logrus.Fields{
			"room_id": c.session.roomID,
			"user_id": c.session.userID,
		}).Warn("Client send buffer full, dropping frame")
	}
}

func (c *client) readPump() {
	defer func() {
		c.session.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.session.heartbeat()
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(logrus.Fields{
				"room_id": c.session.roomID,
				"user_id": c.session.userID,
			})
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.session.handleFrame(message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{
					"room_id": c.session.roomID,
					"user_id": c.session.userID,
				}).WithError(err).Warn("Failed to write frame")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
