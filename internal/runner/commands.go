package runner

import (
	"errors"
	"fmt"

	"github.com/soar/ControllerSync/internal/calibration"
	"github.com/soar/ControllerSync/internal/hub"
	"github.com/soar/ControllerSync/internal/numeric"
)

var _ hub.Commander = (*Runner)(nil)

var errEmptyName = errors.New("control name must not be empty")

// SetOverride pins the calibration bounds of a control.
func (r *Runner) SetOverride(key calibration.Key, b calibration.Bounds) error {
	if err := r.requireDevice(key.DeviceID); err != nil {
		return err
	}
	if err := r.calib.SetOverride(key, b); err != nil {
		return err
	}
	r.notify()
	return nil
}

// ClearOverride resumes auto-ranging of a control.
func (r *Runner) ClearOverride(key calibration.Key) error {
	if err := r.calib.ClearOverride(key); err != nil {
		return err
	}
	r.notify()
	return nil
}

// ResetCalibration forgets the learned range of a control.
func (r *Runner) ResetCalibration(key calibration.Key) {
	r.calib.Reset(key)
	r.notify()
}

// SetInvert flips the normalized output of a known control.
func (r *Runner) SetInvert(key calibration.Key, invert bool) error {
	if err := r.requireControl(key); err != nil {
		return err
	}
	r.calib.SetInvert(key, invert)
	r.notify()
	return nil
}

// SetEasing replaces the easing curve of a known control. An empty curve
// removes easing.
func (r *Runner) SetEasing(key calibration.Key, c numeric.Curve) error {
	if err := r.requireControl(key); err != nil {
		return err
	}
	if err := r.calib.SetEasing(key, c); err != nil {
		return err
	}
	r.notify()
	return nil
}

// Rename changes the name of a known control. Mappings match controls by
// name, so a rename can bind the control to a different sync control.
func (r *Runner) Rename(key calibration.Key, name string) error {
	if name == "" {
		return errEmptyName
	}
	if err := r.requireControl(key); err != nil {
		return err
	}
	r.calib.SetName(key, name)
	r.notify()
	return nil
}

// SetTarget moves a sync control towards value on the following ticks.
func (r *Runner) SetTarget(identifier string, value float64) error {
	if _, err := r.sync.SetTarget(identifier, value); err != nil {
		return err
	}
	r.notify()
	return nil
}

// ResetAll returns every sync control to rest and pushes the result to the game.
func (r *Runner) ResetAll() {
	states := r.sync.ResetAll()
	if len(states) > 0 {
		r.publishControls(states)
	}
	r.notify()
}

// EndSession exports a device's calibration to the profile sinks and
// discards it. The device's display name is used when name is empty.
func (r *Runner) EndSession(deviceID, name string) error {
	if name == "" {
		r.devMu.Lock()
		name = r.devices[deviceID].Name
		r.devMu.Unlock()
	}
	r.endSession(deviceID, name)
	r.notify()
	return nil
}

// ReportCurrent applies a value reported by the game.
func (r *Runner) ReportCurrent(identifier, property string, value float64) error {
	if _, err := r.sync.ReportCurrent(identifier, property, value); err != nil {
		return err
	}
	r.notify()
	return nil
}

func (r *Runner) requireDevice(deviceID string) error {
	if !r.connected(deviceID) {
		return fmt.Errorf("%w: device %s is not connected", calibration.ErrUnknownControl, deviceID)
	}
	return nil
}

func (r *Runner) requireControl(key calibration.Key) error {
	if _, ok := r.calib.Get(key); !ok {
		return fmt.Errorf("%w: %s/%s", calibration.ErrUnknownControl, key.DeviceID, key.ID)
	}
	return nil
}
