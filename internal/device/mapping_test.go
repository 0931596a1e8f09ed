package device

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soar/ControllerSync/internal/calibration"
)

func axisID(i int) calibration.ControlID {
	return calibration.ControlID{Kind: calibration.KindAxis, Index: i}
}

func TestGetMapping(t *testing.T) {
	assert.Equal(t, "xbox", GetMapping(0x045E, 0x0B12).Name)
	assert.Equal(t, "playstation", GetMapping(0x054C, 0x0CE6).Name)
	assert.Equal(t, "switch_pro", GetMapping(0x057E, 0x2009).Name)
	assert.Equal(t, "generic", GetMapping(0x1234, 0x5678).Name)
}

func TestControlName(t *testing.T) {
	ps := GetMapping(0x054C, 0x0CE6)
	assert.Equal(t, "left_x", ps.ControlName(axisID(0)))
	assert.Equal(t, "rt", ps.ControlName(axisID(5)))
	assert.Equal(t, "Axis9", ps.ControlName(axisID(9)))
	assert.Equal(t, "home", ps.ControlName(calibration.ControlID{Kind: calibration.KindButton, Index: 5}))
	assert.Equal(t, "Button20", ps.ControlName(calibration.ControlID{Kind: calibration.KindButton, Index: 20}))
	assert.Equal(t, "dpad", ps.ControlName(calibration.ControlID{Kind: calibration.KindHat, Index: 0}))
	assert.Equal(t, "Hat1", ps.ControlName(calibration.ControlID{Kind: calibration.KindHat, Index: 1}))

	sw := GetMapping(0x057E, 0x2009)
	assert.Equal(t, "Axis4", sw.ControlName(axisID(4)), "switch pro has no analog triggers")
}

func TestID(t *testing.T) {
	assert.Equal(t, "045e:028e", ID(0x045E, 0x028E))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	dev := ID(0x045E, 0x028E)
	assert.Equal(t, "generic", r.Mapping(dev).Name)

	r.Add(dev, GetMapping(0x045E, 0x028E))
	assert.Equal(t, "xbox", r.Mapping(dev).Name)
	assert.Equal(t, "lt", r.Name(dev, axisID(4)))

	r.Remove(dev)
	assert.Equal(t, "generic", r.Mapping(dev).Name)
}
