package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/soar/ControllerSync/internal/calibration"
	"github.com/soar/ControllerSync/internal/numeric"
)

// Commander executes the commands UI clients may send.
type Commander interface {
	SetOverride(key calibration.Key, b calibration.Bounds) error
	ClearOverride(key calibration.Key) error
	ResetCalibration(key calibration.Key)
	SetTarget(identifier string, value float64) error
	ResetAll()
	EndSession(deviceID, name string) error
	SetInvert(key calibration.Key, invert bool) error
	SetEasing(key calibration.Key, c numeric.Curve) error
	Rename(key calibration.Key, name string) error
}

// Client represents a connected WebSocket client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new Client attached to the hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Send queues a message without blocking. It reports false when the buffer
// is full or the client has been closed.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// WritePump sends messages from the send channel to the WebSocket connection.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
}

// ReadPump reads commands from the WebSocket and executes them until the
// connection closes.
func (c *Client) ReadPump(cmd Commander) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handle(cmd, message)
	}
}

func (c *Client) handle(cmd Commander, message []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(message, &clientMsg); err != nil {
		c.hub.logger.Warn("Error parsing client message", zap.Error(err))
		c.reply("", err)
		return
	}

	err := dispatch(cmd, &clientMsg)
	if err != nil {
		c.hub.logger.Warn("Client command failed", zap.String("command", clientMsg.Type), zap.Error(err))
	}
	c.reply(clientMsg.Type, err)
}

func dispatch(cmd Commander, m *ClientMessage) error {
	switch m.Type {
	case CmdSetOverride:
		return cmd.SetOverride(m.Key(), m.Bounds())
	case CmdClearOverride:
		return cmd.ClearOverride(m.Key())
	case CmdResetCalibration:
		cmd.ResetCalibration(m.Key())
		return nil
	case CmdSetTarget:
		return cmd.SetTarget(m.Identifier, m.Value)
	case CmdResetAll:
		cmd.ResetAll()
		return nil
	case CmdEndSession:
		return cmd.EndSession(m.DeviceID, m.Name)
	case CmdSetInvert:
		return cmd.SetInvert(m.Key(), m.Invert)
	case CmdSetEasing:
		return cmd.SetEasing(m.Key(), m.Easing)
	case CmdRename:
		return cmd.Rename(m.Key(), m.Name)
	default:
		return fmt.Errorf("unknown command %q", m.Type)
	}
}

func (c *Client) reply(command string, err error) {
	data, mErr := json.Marshal(NewReplyMessage(command, err))
	if mErr != nil {
		return
	}
	c.Send(data)
}
