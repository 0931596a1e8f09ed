package hub

import (
	"time"

	"github.com/soar/ControllerSync/internal/calibration"
	"github.com/soar/ControllerSync/internal/numeric"
)

// Message types sent from server to client.
const (
	TypeFull               = "full"
	TypeDelta              = "delta"
	TypeCalibrationProfile = "calibration_profile"
	TypeAck                = "ack"
	TypeError              = "error"
)

// Command types sent from client to server.
const (
	CmdSetOverride      = "set_override"
	CmdClearOverride    = "clear_override"
	CmdResetCalibration = "reset_calibration"
	CmdSetTarget        = "set_target"
	CmdResetAll         = "reset_all"
	CmdEndSession       = "end_session"
	CmdSetInvert        = "set_invert"
	CmdSetEasing        = "set_easing"
	CmdRename           = "rename"
)

// WSMessage represents a WebSocket message sent from server to client.
type WSMessage struct {
	Type      string               `json:"type"`
	Seq       int64                `json:"seq"`
	Timestamp int64                `json:"timestamp"` // Unix milliseconds
	Data      *Snapshot            `json:"data,omitempty"`
	Changes   *DeltaChanges        `json:"changes,omitempty"`
	Profile   *calibration.Profile `json:"profile,omitempty"`
	Command   string               `json:"command,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// NewFullMessage creates a "full" type message containing the complete state.
func NewFullMessage(seq int64, state *Snapshot) *WSMessage {
	return &WSMessage{
		Type:      TypeFull,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Data:      state,
	}
}

// NewDeltaMessage creates a "delta" type message containing only changed entries.
func NewDeltaMessage(seq int64, changes *DeltaChanges) *WSMessage {
	return &WSMessage{
		Type:      TypeDelta,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Changes:   changes,
	}
}

// NewProfileMessage announces the calibration profile of an ended session.
func NewProfileMessage(seq int64, p *calibration.Profile) *WSMessage {
	return &WSMessage{
		Type:      TypeCalibrationProfile,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Profile:   p,
	}
}

// NewReplyMessage acknowledges a client command, or reports why it failed.
func NewReplyMessage(command string, err error) *WSMessage {
	msg := &WSMessage{
		Type:      TypeAck,
		Timestamp: time.Now().UnixMilli(),
		Command:   command,
	}
	if err != nil {
		msg.Type = TypeError
		msg.Error = err.Error()
	}
	return msg
}

// ClientMessage represents a command sent from the client to the server.
type ClientMessage struct {
	Type string `json:"type"`

	// Calibration commands.
	DeviceID string           `json:"deviceId,omitempty"`
	Kind     calibration.Kind `json:"kind,omitempty"`
	Index    int              `json:"index,omitempty"`
	Min      float64          `json:"min,omitempty"`
	Max      float64          `json:"max,omitempty"`
	Idle     float64          `json:"idle,omitempty"`
	Deadzone float64          `json:"deadzone,omitempty"`
	Name     string           `json:"name,omitempty"`
	Invert   bool             `json:"invert,omitempty"`
	Easing   numeric.Curve    `json:"easing,omitempty"`

	// Sync control commands.
	Identifier string  `json:"identifier,omitempty"`
	Value      float64 `json:"value,omitempty"`
}

// Key returns the calibration key the command addresses.
func (m *ClientMessage) Key() calibration.Key {
	return calibration.Key{DeviceID: m.DeviceID, ID: calibration.ControlID{Kind: m.Kind, Index: m.Index}}
}

// Bounds returns the override bounds carried by a set_override command.
func (m *ClientMessage) Bounds() calibration.Bounds {
	return calibration.Bounds{Min: m.Min, Max: m.Max, Idle: m.Idle, Deadzone: m.Deadzone}
}
