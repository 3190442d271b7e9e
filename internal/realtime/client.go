package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/itsjustbrian/qspot/internal/player"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection, scoped to a party. A client that
// attaches as the host device additionally carries the party's telemetry
// inbound and receives playback commands outbound, which makes it the
// player.Device implementation for that party.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	partyID string
	userID  string

	server  *Server
	session *player.Session
}

// inboundFrame is what connected clients send us.
type inboundFrame struct {
	Type  string           `json:"type"`
	State *player.RawState `json:"state,omitempty"`
}

// commandFrame is what the server sends to the host device.
type commandFrame struct {
	Type       string `json:"type"`
	Command    string `json:"command"`
	TrackID    string `json:"trackId,omitempty"`
	PositionMs int    `json:"positionMs,omitempty"`
}

func (c *Client) readPump() {
	defer func() {
		c.detachHost()
		c.hub.unregister <- c
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: read: %v", err)
			}
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("realtime: drop malformed frame from %s: %v", c.userID, err)
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame inboundFrame) {
	ctx := context.Background()
	switch frame.Type {
	case "host_attach":
		c.attachHost(ctx)
	case "host_detach":
		c.detachHost()
	case "player_state":
		if c.session != nil {
			c.session.HandleSnapshot(ctx, player.ReduceRawState(frame.State))
		}
	}
}

// attachHost makes this client the party's authoritative playback device.
func (c *Client) attachHost(ctx context.Context) {
	if c.server == nil || c.server.players == nil {
		return
	}
	c.session = c.server.players.Attach(c.partyID, "player:"+c.userID, c)
	log.Printf("realtime: %s is now the host device for party %s", c.userID, c.partyID)
	if err := c.session.Start(ctx); err != nil {
		log.Printf("realtime: start playback for party %s: %v", c.partyID, err)
	}
}

func (c *Client) detachHost() {
	if c.session == nil {
		return
	}
	c.session.HandleSnapshot(context.Background(), nil)
	c.server.players.Detach(c.partyID, c.session)
	c.session = nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendCommand queues a command frame for the device on the other end.
func (c *Client) sendCommand(frame commandFrame) error {
	frame.Type = "command"
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

// Client implements player.Device by relaying commands to the host's
// physical player over the socket.

func (c *Client) Play(ctx context.Context, playTrackID string, positionMs int) error {
	return c.sendCommand(commandFrame{Command: "play", TrackID: playTrackID, PositionMs: positionMs})
}

func (c *Client) Pause(ctx context.Context) error {
	return c.sendCommand(commandFrame{Command: "pause"})
}

func (c *Client) Resume(ctx context.Context) error {
	return c.sendCommand(commandFrame{Command: "resume"})
}

func (c *Client) Seek(ctx context.Context, positionMs int) error {
	return c.sendCommand(commandFrame{Command: "seek", PositionMs: positionMs})
}
