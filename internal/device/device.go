// Package device describes controllers independently of the input backend:
// their connection state, the ordered event stream a backend produces, and
// the per-model names of their controls.
package device

import "github.com/soar/ControllerSync/internal/calibration"

// Info describes a connected (or just removed) controller.
type Info struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Mapping   string `json:"mapping"`
	Connected bool   `json:"connected"`
}

// Event is one item of a backend's input stream. Exactly one of the two
// fields is meaningful: Change is set for connect and disconnect
// notifications, Raw otherwise. A single stream keeps a device's samples
// ordered before its disconnect.
type Event struct {
	Raw    calibration.RawEvent
	Change *Info
}

// RawEvent wraps a control sample.
func RawEvent(ev calibration.RawEvent) Event {
	return Event{Raw: ev}
}

// ChangeEvent wraps a connection change.
func ChangeEvent(info Info) Event {
	return Event{Change: &info}
}
