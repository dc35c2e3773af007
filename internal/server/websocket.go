package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talkdrop/talkdrop/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one WebSocket connection bound to a room session. Liveness is
// server-side: the read deadline is refreshed on every pong, so a dead
// connection trips the deadline and the deferred disconnect marks the user
// offline even when no leave frame ever arrives.
type Client struct {
	hub     *Hub
	session *Session
	conn    *websocket.Conn
	events  <-chan protocol.ServerEvent
	errs    chan protocol.ServerEvent
	subID   int
	userID  string
	name    string
}

// readPump consumes client frames and routes them through the session.
func (c *Client) readPump() {
	defer func() {
		c.session.Unsubscribe(c.subID)
		c.session.Disconnect(c.userID)
		c.hub.UntrackUser(c.userID, c.session.roomID)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.session.Heartbeat(c.userID)
		return nil
	})
	for {
		var frame protocol.ClientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read error room=%s user=%s: %v", c.session.roomID, c.userID, err)
			}
			return
		}

		switch frame.Type {
		case protocol.FrameMessage:
			_, err := c.session.Append(context.Background(), c.userID, c.name, frame.Text)
			if err != nil {
				// The sender alone sees the failure; other subscribers
				// observe no change.
				c.sendError(err)
				continue
			}
			c.session.SetTyping(c.userID, false)
		case protocol.FrameTyping:
			c.session.SetTyping(c.userID, frame.IsTyping)
		case protocol.FrameHeartbeat:
			c.session.Heartbeat(c.userID)
		default:
			log.Printf("ws unknown frame type %q room=%s user=%s", frame.Type, c.session.roomID, c.userID)
		}
	}
}

// writePump pushes snapshot events to the connection and keeps it alive
// with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.events:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case ev := <-c.errs:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendError reports a failed action to this client only. The event is
// handed to the write pump; all conn writes stay on one goroutine.
func (c *Client) sendError(err error) {
	ev := protocol.ServerEvent{
		Event: protocol.EventError,
		Room:  c.session.roomID,
		Error: err.Error(),
	}
	select {
	case c.errs <- ev:
	default:
	}
}

// ServeWS upgrades the connection, joins the room, and starts the pumps.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, roomID, userID, name string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	session, err := hub.GetOrCreateSession(r.Context(), roomID)
	if err == nil {
		err = session.Join(r.Context(), userID, name)
	}
	if err != nil {
		// A failed join is fatal to this attempt; the client retries the
		// whole join.
		code := websocket.CloseInternalServerErr
		if errors.Is(err, ErrRoomFull) || errors.Is(err, ErrInvalidRoomID) {
			code = websocket.ClosePolicyViolation
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	hub.TrackUser(userID, roomID)
	subID, events := session.Subscribe()

	client := &Client{
		hub:     hub,
		session: session,
		conn:    conn,
		events:  events,
		errs:    make(chan protocol.ServerEvent, 4),
		subID:   subID,
		userID:  userID,
		name:    name,
	}
	go client.writePump()
	go client.readPump()
}
