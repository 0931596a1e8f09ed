package gamepad

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/jupiterrider/purego-sdl3/sdl"
	"go.uber.org/zap"

	"github.com/soar/ControllerSync/internal/calibration"
	"github.com/soar/ControllerSync/internal/device"
)

const (
	pollDelayNS = 4_000_000 // ~250Hz
	eventBuffer = 256
)

// ErrSDLInit is returned by Run when the joystick subsystem cannot start.
var ErrSDLInit = errors.New("SDL joystick init failed")

type joystickInfo struct {
	joystick *sdl.Joystick
	mapping  *device.Mapping
	name     string
	deviceID string
}

// Reader reads controller input from the SDL3 joystick API. Axis, button and
// hat changes and device connects/disconnects go out on one ordered stream.
type Reader struct {
	logger    *zap.Logger
	registry  *device.Registry
	joysticks map[sdl.JoystickID]*joystickInfo
	events    chan device.Event
	done      <-chan struct{}

	// OnInit runs on the reader thread right after SDL is initialized.
	OnInit func()
}

func NewReader(logger *zap.Logger, registry *device.Registry) *Reader {
	return &Reader{
		logger:    logger.Named("gamepad"),
		registry:  registry,
		joysticks: make(map[sdl.JoystickID]*joystickInfo),
		events:    make(chan device.Event, eventBuffer),
	}
}

// Events returns the stream raw control events and device changes are sent on.
func (r *Reader) Events() <-chan device.Event {
	return r.events
}

// Run initializes SDL and runs the event loop on a locked OS thread until ctx
// is cancelled.
func (r *Reader) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	r.done = ctx.Done()

	if !sdl.Init(sdl.InitJoystick) {
		return fmt.Errorf("%w: %s", ErrSDLInit, sdl.GetError())
	}
	defer sdl.Quit()

	r.logger.Info("SDL3 joystick subsystem initialized")
	if r.OnInit != nil {
		r.OnInit()
	}

	for _, id := range sdl.GetJoysticks() {
		r.openJoystick(id)
	}

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return nil
		default:
		}

		r.processEvents()
		sdl.DelayNS(pollDelayNS)
	}
}

func (r *Reader) processEvents() {
	var event sdl.Event
	for sdl.PollEvent(&event) {
		switch event.Type() {
		case sdl.EventJoystickAdded:
			r.openJoystick(event.JDevice().Which)

		case sdl.EventJoystickRemoved:
			r.removeJoystick(event.JDevice().Which)

		case sdl.EventJoystickButtonDown:
			be := event.JButton()
			r.emit(be.Which, calibration.KindButton, int(be.Button), 1)

		case sdl.EventJoystickButtonUp:
			be := event.JButton()
			r.emit(be.Which, calibration.KindButton, int(be.Button), 0)

		case sdl.EventJoystickAxisMotion:
			ae := event.JAxis()
			r.emit(ae.Which, calibration.KindAxis, int(ae.Axis), float64(ae.Value))

		case sdl.EventJoystickHatMotion:
			he := event.JHat()
			r.emit(he.Which, calibration.KindHat, int(he.Hat), float64(he.Value))
		}
	}
}

func (r *Reader) emit(which sdl.JoystickID, kind calibration.Kind, index int, value float64) {
	info, ok := r.joysticks[which]
	if !ok {
		return
	}
	ev := calibration.RawEvent{
		DeviceID:  info.deviceID,
		Kind:      kind,
		Index:     index,
		RawValue:  value,
		Timestamp: time.Now(),
	}
	select {
	case r.events <- device.RawEvent(ev):
	default:
		// Drop if channel is full to avoid blocking the SDL thread
		r.logger.Debug("Raw event dropped", zap.String("device", info.deviceID), zap.Stringer("kind", kind), zap.Int("index", index))
	}
}

func (r *Reader) openJoystick(instanceID sdl.JoystickID) {
	if _, exists := r.joysticks[instanceID]; exists {
		return
	}

	js := sdl.OpenJoystick(instanceID)
	if js == nil {
		r.logger.Warn("Failed to open joystick", zap.Uint32("instance", uint32(instanceID)), zap.String("error", sdl.GetError()))
		return
	}

	jsID := sdl.GetJoystickID(js)
	vendorID := sdl.GetJoystickVendor(js)
	productID := sdl.GetJoystickProduct(js)
	name := sdl.GetJoystickName(js)
	mapping := device.GetMapping(vendorID, productID)

	info := &joystickInfo{
		joystick: js,
		mapping:  mapping,
		name:     name,
		deviceID: r.uniqueDeviceID(device.ID(vendorID, productID)),
	}
	r.joysticks[jsID] = info
	r.registry.Add(info.deviceID, mapping)

	r.logger.Info("Joystick connected",
		zap.String("name", name),
		zap.String("device", info.deviceID),
		zap.String("mapping", mapping.Name),
		zap.Int32("axes", sdl.GetNumJoystickAxes(js)),
		zap.Int32("buttons", sdl.GetNumJoystickButtons(js)),
		zap.Int32("hats", sdl.GetNumJoystickHats(js)))

	r.notify(device.Info{ID: info.deviceID, Name: name, Mapping: mapping.Name, Connected: true})
}

// uniqueDeviceID suffixes the model id when the same model is connected twice.
func (r *Reader) uniqueDeviceID(base string) string {
	taken := func(id string) bool {
		for _, info := range r.joysticks {
			if info.deviceID == id {
				return true
			}
		}
		return false
	}
	id := base
	for n := 2; taken(id); n++ {
		id = fmt.Sprintf("%s#%d", base, n)
	}
	return id
}

func (r *Reader) removeJoystick(instanceID sdl.JoystickID) {
	info, exists := r.joysticks[instanceID]
	if !exists {
		return
	}

	r.logger.Info("Joystick disconnected", zap.String("name", info.name), zap.String("device", info.deviceID))
	sdl.CloseJoystick(info.joystick)
	delete(r.joysticks, instanceID)
	r.registry.Remove(info.deviceID)

	r.notify(device.Info{ID: info.deviceID, Name: info.name, Mapping: info.mapping.Name})
}

// notify queues a connection change behind the device's pending samples.
// Unlike samples it is never dropped; it only gives up on shutdown.
func (r *Reader) notify(d device.Info) {
	select {
	case r.events <- device.ChangeEvent(d):
	case <-r.done:
	}
}

func (r *Reader) closeAll() {
	for id, info := range r.joysticks {
		sdl.CloseJoystick(info.joystick)
		delete(r.joysticks, id)
	}
}
