// Package runner wires a raw event source through calibration and mapping
// into the sync control engine, and drives the engine's tick loop.
package runner

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soar/ControllerSync/internal/calibration"
	"github.com/soar/ControllerSync/internal/config"
	"github.com/soar/ControllerSync/internal/device"
	"github.com/soar/ControllerSync/internal/hub"
	"github.com/soar/ControllerSync/internal/synccontrol"
)

// Source produces raw control events and device notifications on a single
// ordered stream, so a disconnect is never seen before that device's last events.
type Source interface {
	Run(ctx context.Context) error
	Events() <-chan device.Event
}

// ControlSink receives sync control states that changed.
type ControlSink interface {
	PublishControls(states []synccontrol.State)
}

// ProfileSink receives calibration profiles exported by an explicit end of session.
type ProfileSink interface {
	PublishProfile(p calibration.Profile)
}

// ProfileSource provides the stored calibration of a device.
type ProfileSource interface {
	Profile(deviceID string) (calibration.Profile, bool, error)
}

// Runner feeds device events through calibration into the mapped controls.
// Sync-mode mappings travel through the motion engine on every tick; direct-mode
// mappings are published to the control sinks as soon as their input changes.
type Runner struct {
	logger       *zap.Logger
	tickInterval time.Duration
	mappings     []config.Mapping

	source Source
	calib  *calibration.Engine
	sync   *synccontrol.Engine

	controlSinks []ControlSink
	profileSinks []ProfileSink
	profiles     ProfileSource

	notifyMu  sync.Mutex
	snapshots chan hub.Snapshot

	devMu   sync.Mutex
	devices map[string]device.Info
	direct  map[string]float64
}

// New creates a runner over source. Mappings without an output range take the
// range of cfg.DefaultProfile and keep the rest of their own profile.
func New(logger *zap.Logger, cfg config.EngineConfig, mappings []config.Mapping, source Source, calib *calibration.Engine, engine *synccontrol.Engine) *Runner {
	r := &Runner{
		logger:       logger.Named("runner"),
		tickInterval: cfg.TickInterval,
		source:       source,
		calib:        calib,
		sync:         engine,
		snapshots:    make(chan hub.Snapshot, 1),
		devices:      make(map[string]device.Info),
		direct:       make(map[string]float64),
	}
	for _, m := range mappings {
		if m.Profile.Max == m.Profile.Min {
			m.Profile.Min = cfg.DefaultProfile.Min
			m.Profile.Max = cfg.DefaultProfile.Max
		}
		r.mappings = append(r.mappings, m)
	}
	return r
}

// AddControlSink registers a receiver of changed sync control states.
func (r *Runner) AddControlSink(s ControlSink) {
	r.controlSinks = append(r.controlSinks, s)
}

// AddProfileSink registers a receiver of exported calibration profiles.
func (r *Runner) AddProfileSink(s ProfileSink) {
	r.profileSinks = append(r.profileSinks, s)
}

// SetProfileSource sets where a connecting device's calibration is loaded from.
func (r *Runner) SetProfileSource(src ProfileSource) {
	r.profiles = src
}

// Snapshots returns the channel the latest state is published on. Only the
// most recent snapshot is kept when the reader falls behind.
func (r *Runner) Snapshots() <-chan hub.Snapshot {
	return r.snapshots
}

// Snapshot returns the current state of devices and both engines.
func (r *Runner) Snapshot() hub.Snapshot {
	r.devMu.Lock()
	devices := make([]device.Info, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	r.devMu.Unlock()
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	return hub.Snapshot{
		Devices:     devices,
		Calibration: r.calib.Snapshot(),
		Controls:    r.sync.Snapshot(),
	}
}

// Run runs the source, the ingest loop and the tick loop until ctx is
// cancelled or one of them fails.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.source.Run(ctx) })
	g.Go(func() error { return r.ingest(ctx) })
	g.Go(func() error { return r.tickLoop(ctx) })
	return g.Wait()
}

func (r *Runner) ingest(ctx context.Context) error {
	events := r.source.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.Change != nil {
				r.HandleDevice(*ev.Change)
			} else {
				r.HandleEvent(ev.Raw)
			}
		}
	}
}

func (r *Runner) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Step(now.Sub(last))
			last = now
		}
	}
}

// Step advances the sync engine by dt and publishes the controls that moved.
func (r *Runner) Step(dt time.Duration) {
	changed := r.sync.Tick(dt)
	if len(changed) == 0 {
		return
	}
	r.publishControls(changed)
	r.notify()
}

// HandleEvent calibrates a raw event and forwards it to every mapping of the
// control that produced it. Events of devices that are not connected are dropped.
func (r *Runner) HandleEvent(ev calibration.RawEvent) {
	if !r.connected(ev.DeviceID) {
		r.logger.Debug("Event from unknown device dropped", zap.String("device", ev.DeviceID))
		return
	}
	sample, err := r.calib.Ingest(ev)
	if err != nil {
		r.logger.Debug("Raw event rejected", zap.Error(err))
		return
	}
	var direct []synccontrol.State
	for _, m := range r.mappings {
		if !m.Matches(sample.DeviceID, sample.Identifier) {
			continue
		}
		target := m.Profile.OutputValue(sample.NormalizedValue)
		if m.IsDirect() {
			if st, ok := r.directState(m, sample.DeviceID, target); ok {
				direct = append(direct, st)
			}
			continue
		}
		if _, err := r.sync.SetTarget(m.Identifier, target); err != nil {
			r.logger.Warn("Target rejected", zap.String("identifier", m.Identifier), zap.Error(err))
		}
	}
	if len(direct) > 0 {
		r.publishControls(direct)
	}
	r.notify()
}

// directState records the value a direct mapping last sent and reports
// whether value differs from it.
func (r *Runner) directState(m config.Mapping, deviceID string, value float64) (synccontrol.State, bool) {
	r.devMu.Lock()
	last, seen := r.direct[m.Identifier]
	r.direct[m.Identifier] = value
	r.devMu.Unlock()
	if seen && last == value {
		return synccontrol.State{}, false
	}
	return synccontrol.State{
		Identifier:             m.Identifier,
		PropertyName:           m.Property,
		SourceDevice:           deviceID,
		CurrentValue:           value,
		CurrentNormalizedValue: m.Profile.Normalize(value),
		TargetValue:            value,
		Profile:                m.Profile,
	}, true
}

func (r *Runner) connected(deviceID string) bool {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	_, ok := r.devices[deviceID]
	return ok
}

// HandleDevice activates the mappings of a connected device. A disconnect
// discards the device's calibration without exporting it and drops the
// controls it drove.
func (r *Runner) HandleDevice(dev device.Info) {
	r.devMu.Lock()
	if dev.Connected {
		r.devices[dev.ID] = dev
	} else {
		delete(r.devices, dev.ID)
		for _, m := range r.mappings {
			if m.IsDirect() && (m.Device == "" || m.Device == dev.ID) {
				delete(r.direct, m.Identifier)
			}
		}
	}
	r.devMu.Unlock()

	if dev.Connected {
		r.loadProfile(dev.ID)
		for _, m := range r.mappings {
			if m.IsDirect() || (m.Device != "" && m.Device != dev.ID) {
				continue
			}
			if _, err := r.sync.Configure(m.Identifier, m.Property, dev.ID, m.Profile); err != nil {
				r.logger.Warn("Mapping not activated", zap.String("identifier", m.Identifier), zap.Error(err))
			}
		}
		r.logger.Info("Device mappings activated", zap.String("device", dev.ID), zap.String("name", dev.Name))
	} else {
		r.calib.ResetDevice(dev.ID)
		r.sync.RemoveSource(dev.ID)
		r.logger.Info("Device disconnected", zap.String("device", dev.ID), zap.String("name", dev.Name))
	}
	r.notify()
}

func (r *Runner) loadProfile(deviceID string) {
	if r.profiles == nil {
		return
	}
	p, ok, err := r.profiles.Profile(deviceID)
	if err != nil {
		r.logger.Warn("Stored calibration not loaded", zap.String("device", deviceID), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := r.calib.Load(p); err != nil {
		r.logger.Warn("Stored calibration rejected", zap.String("device", deviceID), zap.Error(err))
	}
}

func (r *Runner) endSession(deviceID, name string) {
	if name == "" {
		name = deviceID
	}
	p := r.calib.EndSession(deviceID, name)
	if len(p.Controls) == 0 {
		return
	}
	for _, s := range r.profileSinks {
		s.PublishProfile(p)
	}
}

func (r *Runner) publishControls(states []synccontrol.State) {
	for _, s := range r.controlSinks {
		s.PublishControls(states)
	}
}

// notify replaces any unread snapshot with the current one.
func (r *Runner) notify() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	s := r.Snapshot()
	for {
		select {
		case r.snapshots <- s:
			return
		default:
		}
		select {
		case <-r.snapshots:
		default:
		}
	}
}
