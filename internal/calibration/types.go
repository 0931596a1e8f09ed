package calibration

import (
	"fmt"
	"strings"
	"time"

	"github.com/soar/ControllerSync/internal/numeric"
)

// Kind is the class of a physical control.
type Kind uint8

const (
	KindAxis Kind = iota
	KindButton
	KindHat
	// KindOther covers any control class the device layer reports that has no
	// dedicated variant.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindAxis:
		return "axis"
	case KindButton:
		return "button"
	case KindHat:
		return "hat"
	default:
		return "other"
	}
}

// ParseKind maps a label to a Kind. Unrecognised labels map to KindOther.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "axis":
		return KindAxis
	case "button":
		return KindButton
	case "hat":
		return KindHat
	default:
		return KindOther
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	*k = ParseKind(string(b))
	return nil
}

// ControlID identifies a control on a single device.
type ControlID struct {
	Kind  Kind `json:"kind"`
	Index int  `json:"index"`
}

// String returns the fallback control name, e.g. "Axis0" or "Button3".
func (id ControlID) String() string {
	name := id.Kind.String()
	return fmt.Sprintf("%s%s%d", strings.ToUpper(name[:1]), name[1:], id.Index)
}

// Less orders control ids by kind, then index.
func (id ControlID) Less(o ControlID) bool {
	if id.Kind != o.Kind {
		return id.Kind < o.Kind
	}
	return id.Index < o.Index
}

// Key addresses a control across devices.
type Key struct {
	DeviceID string    `json:"deviceId"`
	ID       ControlID `json:"id"`
}

// RawEvent is a single unprocessed sample from a device.
type RawEvent struct {
	DeviceID  string
	Kind      Kind
	Index     int
	RawValue  float64
	Timestamp time.Time
}

// Key returns the table key of the control that produced the event.
func (e RawEvent) Key() Key {
	return Key{DeviceID: e.DeviceID, ID: ControlID{Kind: e.Kind, Index: e.Index}}
}

// Bound is an optional calibration bound. The zero value is unset.
type Bound struct {
	Value float64 `json:"value"`
	Set   bool    `json:"set"`
}

// BoundOf returns a set bound.
func BoundOf(v float64) Bound {
	return Bound{Value: v, Set: true}
}

// lower returns the smaller of b and v; an unset bound always yields v.
func (b Bound) lower(v float64) Bound {
	if !b.Set || v < b.Value {
		return BoundOf(v)
	}
	return b
}

// upper returns the larger of b and v; an unset bound always yields v.
func (b Bound) upper(v float64) Bound {
	if !b.Set || v > b.Value {
		return BoundOf(v)
	}
	return b
}

// State is the calibration record of a single control.
type State struct {
	DeviceID string        `json:"deviceId"`
	ID       ControlID     `json:"id"`
	Name     string        `json:"name"`
	RawValue float64       `json:"rawValue"`
	Sampled  bool          `json:"sampled"`
	Min      Bound         `json:"min"`
	Max      Bound         `json:"max"`
	Idle     Bound         `json:"idle"`
	Deadzone float64       `json:"deadzone"`
	Invert   bool          `json:"invert"`
	Override bool          `json:"override"`
	Easing   numeric.Curve `json:"easing,omitempty"`
}

// Key returns the table key of the state.
func (s State) Key() Key {
	return Key{DeviceID: s.DeviceID, ID: s.ID}
}

// Calibrated reports whether both range bounds are known.
func (s State) Calibrated() bool {
	return s.Min.Set && s.Max.Set
}

func (s *State) clone() State {
	c := *s
	c.Easing = s.Easing.Clone()
	return c
}

// Bounds are user-authored calibration limits.
type Bounds struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Idle     float64 `json:"idle"`
	Deadzone float64 `json:"deadzone"`
}

// NormalizedSample is the engine output for one ingested event.
type NormalizedSample struct {
	DeviceID        string    `json:"deviceId"`
	ID              ControlID `json:"id"`
	Identifier      string    `json:"identifier"`
	RawValue        float64   `json:"rawValue"`
	NormalizedValue float64   `json:"normalizedValue"`
	Timestamp       time.Time `json:"timestamp"`
}
