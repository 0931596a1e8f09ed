package hub

import (
	"math"
	"slices"

	"github.com/soar/ControllerSync/internal/calibration"
	"github.com/soar/ControllerSync/internal/device"
	"github.com/soar/ControllerSync/internal/synccontrol"
)

// Snapshot is the full state pushed to UI observers.
type Snapshot struct {
	Devices     []device.Info       `json:"devices"`
	Calibration []calibration.State `json:"calibration"`
	Controls    []synccontrol.State `json:"controls"`
}

// DeltaChanges carries only what changed between two snapshots.
type DeltaChanges struct {
	Devices            *[]device.Info      `json:"devices,omitempty"`
	Calibration        []calibration.State `json:"calibration,omitempty"`
	Controls           []synccontrol.State `json:"controls,omitempty"`
	RemovedCalibration []calibration.Key   `json:"removedCalibration,omitempty"`
	RemovedControls    []string            `json:"removedControls,omitempty"`
}

func (d *DeltaChanges) IsEmpty() bool {
	return d.Devices == nil &&
		len(d.Calibration) == 0 &&
		len(d.Controls) == 0 &&
		len(d.RemovedCalibration) == 0 &&
		len(d.RemovedControls) == 0
}

const analogThreshold = 0.001

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < analogThreshold
}

func calibrationEqual(a, b *calibration.State) bool {
	return a.Name == b.Name &&
		a.RawValue == b.RawValue &&
		a.Min == b.Min &&
		a.Max == b.Max &&
		a.Idle == b.Idle &&
		a.Deadzone == b.Deadzone &&
		a.Invert == b.Invert &&
		a.Override == b.Override &&
		slices.Equal(a.Easing, b.Easing)
}

func controlEqual(a, b *synccontrol.State) bool {
	return a.PropertyName == b.PropertyName &&
		a.SourceDevice == b.SourceDevice &&
		a.CurrentValue == b.CurrentValue &&
		a.TargetValue == b.TargetValue &&
		a.Motion == b.Motion &&
		floatEqual(a.CurrentNormalizedValue, b.CurrentNormalizedValue)
}

// ComputeDelta lists the devices, calibration records and sync controls that
// were added, changed or removed from old to new_.
func ComputeDelta(old, new_ Snapshot) *DeltaChanges {
	d := &DeltaChanges{}

	if !slices.Equal(old.Devices, new_.Devices) {
		devices := slices.Clone(new_.Devices)
		if devices == nil {
			devices = []device.Info{}
		}
		d.Devices = &devices
	}

	prevCal := make(map[calibration.Key]*calibration.State, len(old.Calibration))
	for i := range old.Calibration {
		prevCal[old.Calibration[i].Key()] = &old.Calibration[i]
	}
	for i := range new_.Calibration {
		st := &new_.Calibration[i]
		prev, ok := prevCal[st.Key()]
		if !ok || !calibrationEqual(prev, st) {
			d.Calibration = append(d.Calibration, *st)
		}
		delete(prevCal, st.Key())
	}
	for i := range old.Calibration {
		if k := old.Calibration[i].Key(); prevCal[k] != nil {
			d.RemovedCalibration = append(d.RemovedCalibration, k)
		}
	}

	prevCtl := make(map[string]*synccontrol.State, len(old.Controls))
	for i := range old.Controls {
		prevCtl[old.Controls[i].Identifier] = &old.Controls[i]
	}
	for i := range new_.Controls {
		st := &new_.Controls[i]
		prev, ok := prevCtl[st.Identifier]
		if !ok || !controlEqual(prev, st) {
			d.Controls = append(d.Controls, *st)
		}
		delete(prevCtl, st.Identifier)
	}
	for i := range old.Controls {
		if id := old.Controls[i].Identifier; prevCtl[id] != nil {
			d.RemovedControls = append(d.RemovedControls, id)
		}
	}

	return d
}
