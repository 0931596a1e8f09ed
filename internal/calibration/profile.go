package calibration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/soar/ControllerSync/internal/numeric"
)

// ControlCalibration is the persisted form of one control's calibration.
type ControlCalibration struct {
	Kind     Kind          `json:"kind"`
	Index    int           `json:"index" validate:"gte=0"`
	Name     string        `json:"name"`
	Min      float64       `json:"min"`
	Max      float64       `json:"max"`
	Idle     float64       `json:"idle"`
	Deadzone float64       `json:"deadzone" validate:"gte=0"`
	Invert   bool          `json:"invert,omitempty"`
	Easing   numeric.Curve `json:"easing_curve,omitempty"`
}

// Profile is the serializable calibration of one device, handed to the
// configuration store at the end of a session and accepted back at the start
// of the next one.
type Profile struct {
	SessionID string               `json:"session_id,omitempty"`
	Name      string               `json:"name" validate:"required"`
	DeviceID  string               `json:"device_id" validate:"required"`
	StartedAt time.Time            `json:"started_at,omitempty"`
	Controls  []ControlCalibration `json:"controls" validate:"required,dive"`
}

var validate = validator.New()

// ProfileFromJSON decodes and validates a profile.
func ProfileFromJSON(data []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileLoad, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the structure of the profile. Errors wrap ErrProfileLoad.
func (p *Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrProfileLoad, err)
	}
	seen := make(map[ControlID]bool, len(p.Controls))
	for i, c := range p.Controls {
		id := ControlID{Kind: c.Kind, Index: c.Index}
		if seen[id] {
			return fmt.Errorf("%w: duplicate control %s", ErrProfileLoad, id)
		}
		seen[id] = true

		b := Bounds{Min: c.Min, Max: c.Max, Idle: c.Idle, Deadzone: c.Deadzone}
		if err := b.validate(); err != nil {
			return fmt.Errorf("%w: control %d (%s): %v", ErrProfileLoad, i, id, err)
		}
		if err := c.Easing.Validate(); err != nil {
			return fmt.Errorf("%w: control %d (%s): %v", ErrProfileLoad, i, id, err)
		}
	}
	return nil
}

// Export builds a profile from the calibrated controls of a device. Controls
// that never produced a sample are left out.
func (e *Engine) Export(deviceID, name string) Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exportLocked(deviceID, name)
}

// EndSession exports the device's profile and discards its calibration state.
func (e *Engine) EndSession(deviceID, name string) Profile {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.exportLocked(deviceID, name)
	e.dropDeviceLocked(deviceID)
	e.logger.Info("Calibration session ended",
		zap.String("device", deviceID),
		zap.String("session", p.SessionID),
		zap.Int("controls", len(p.Controls)))
	return p
}

// Load pre-populates override state from a profile. The profile is validated
// in full before anything is applied; on error the engine is unchanged.
func (e *Engine) Load(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range p.Controls {
		st := e.lookupLocked(Key{DeviceID: p.DeviceID, ID: ControlID{Kind: c.Kind, Index: c.Index}})
		if c.Name != "" {
			st.Name = c.Name
		}
		st.Min = BoundOf(c.Min)
		st.Max = BoundOf(c.Max)
		st.Idle = BoundOf(c.Idle)
		st.Deadzone = c.Deadzone
		st.Invert = c.Invert
		st.Easing = c.Easing.Clone()
		st.Override = true
	}
	e.logger.Info("Calibration profile loaded",
		zap.String("profile", p.Name),
		zap.String("device", p.DeviceID),
		zap.Int("controls", len(p.Controls)))
	return nil
}

func (e *Engine) exportLocked(deviceID, name string) Profile {
	p := Profile{
		Name:     name,
		DeviceID: deviceID,
		Controls: []ControlCalibration{},
	}
	if s, ok := e.sessions[deviceID]; ok {
		p.SessionID = s.id
		p.StartedAt = s.started
	}
	for _, st := range e.snapshotLocked(func(s *State) bool { return s.DeviceID == deviceID }) {
		if !st.Calibrated() {
			continue
		}
		idle := st.Min.Value
		if st.Idle.Set {
			idle = st.Idle.Value
		}
		p.Controls = append(p.Controls, ControlCalibration{
			Kind:     st.ID.Kind,
			Index:    st.ID.Index,
			Name:     st.Name,
			Min:      st.Min.Value,
			Max:      st.Max.Value,
			Idle:     idle,
			Deadzone: st.Deadzone,
			Invert:   st.Invert,
			Easing:   st.Easing,
		})
	}
	return p
}
