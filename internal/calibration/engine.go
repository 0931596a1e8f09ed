// Package calibration learns the operating range of physical controls from a
// stream of raw device events and turns further events into normalized values.
//
// Auto-ranging widens min/max with every sample and tracks the idle (rest)
// point as the lowest value seen so far. Controls whose bounds were authored by
// the user (override) keep those bounds until the override is cleared.
package calibration

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soar/ControllerSync/internal/numeric"
)

// minSpan keeps the normalization denominator positive.
const minSpan = 1e-9

// Namer returns the display name of a newly seen control.
type Namer func(deviceID string, id ControlID) string

type session struct {
	id      string
	started time.Time
}

// Engine owns the calibration state of every control of every device.
// All methods are safe for concurrent use.
type Engine struct {
	logger          *zap.Logger
	namer           Namer
	defaultDeadzone float64
	now             func() time.Time

	mu       sync.Mutex
	states   map[Key]*State
	sessions map[string]session
}

// Option configures an Engine.
type Option func(*Engine)

// WithNamer sets the function naming newly seen controls.
func WithNamer(n Namer) Option {
	return func(e *Engine) { e.namer = n }
}

// WithDefaultDeadzone sets the deadzone given to newly seen controls.
func WithDefaultDeadzone(dz float64) Option {
	return func(e *Engine) {
		if numeric.IsFinite(dz) && dz >= 0 {
			e.defaultDeadzone = dz
		}
	}
}

// WithClock overrides the time source used for session bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an empty engine.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:   logger.Named("calibration"),
		namer:    func(_ string, id ControlID) string { return id.String() },
		now:      time.Now,
		states:   make(map[Key]*State),
		sessions: make(map[string]session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest applies a raw event to its control and returns the normalized sample.
// Non-finite raw values are rejected with ErrInvalidSample without touching state.
func (e *Engine) Ingest(ev RawEvent) (NormalizedSample, error) {
	key := ev.Key()
	if !numeric.IsFinite(ev.RawValue) {
		return NormalizedSample{}, fmt.Errorf("%w: %s/%s raw value %v", ErrInvalidSample, key.DeviceID, key.ID, ev.RawValue)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.lookupLocked(key)
	raw := ev.RawValue
	if !st.Override {
		st.Min = st.Min.lower(raw)
		st.Max = st.Max.upper(raw)
		st.Idle = st.Idle.lower(raw)
	}
	st.RawValue = raw
	st.Sampled = true

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	return NormalizedSample{
		DeviceID:        key.DeviceID,
		ID:              key.ID,
		Identifier:      st.Name,
		RawValue:        raw,
		NormalizedValue: st.normalize(raw),
		Timestamp:       ts,
	}, nil
}

// SetOverride pins min/max/idle/deadzone and suspends auto-ranging for the
// control. Calling it again with the same bounds is a no-op.
func (e *Engine) SetOverride(key Key, b Bounds) error {
	if err := b.validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.lookupLocked(key)
	st.Min = BoundOf(b.Min)
	st.Max = BoundOf(b.Max)
	st.Idle = BoundOf(b.Idle)
	st.Deadzone = b.Deadzone
	st.Override = true

	e.logger.Info("Calibration override set",
		zap.String("device", key.DeviceID),
		zap.String("control", st.Name),
		zap.Float64("min", b.Min),
		zap.Float64("max", b.Max),
		zap.Float64("idle", b.Idle),
		zap.Float64("deadzone", b.Deadzone))
	return nil
}

// ClearOverride resumes auto-ranging, starting from the authored bounds
// widened to cover the last raw value and the idle point.
func (e *Engine) ClearOverride(key Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownControl, key.DeviceID, key.ID)
	}
	st.Override = false
	if st.Sampled {
		st.Min = st.Min.lower(st.RawValue)
		st.Max = st.Max.upper(st.RawValue)
	}
	if st.Idle.Set {
		st.Min = st.Min.lower(st.Idle.Value)
		st.Max = st.Max.upper(st.Idle.Value)
	}
	return nil
}

// Reset returns a control to unset bounds with auto-ranging enabled.
// Unknown controls are ignored.
func (e *Engine) Reset(key Key) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[key]
	if !ok {
		return
	}
	st.Min, st.Max, st.Idle = Bound{}, Bound{}, Bound{}
	st.Override = false
	e.logger.Info("Calibration reset", zap.String("device", key.DeviceID), zap.String("control", st.Name))
}

// SetInvert sets the inversion flag of a control.
func (e *Engine) SetInvert(key Key, invert bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lookupLocked(key).Invert = invert
}

// SetEasing sets the easing curve of a control. A nil curve removes easing.
func (e *Engine) SetEasing(key Key, c numeric.Curve) error {
	if err := c.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lookupLocked(key).Easing = c.Clone()
	return nil
}

// SetName renames a control.
func (e *Engine) SetName(key Key, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lookupLocked(key).Name = name
}

// Get returns a copy of a single control state.
func (e *Engine) Get(key Key) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[key]
	if !ok {
		return State{}, false
	}
	return st.clone(), true
}

// Snapshot returns copies of all states ordered by device, kind and index.
func (e *Engine) Snapshot() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(func(*State) bool { return true })
}

// DeviceSnapshot returns copies of the states of one device ordered by kind and index.
func (e *Engine) DeviceSnapshot(deviceID string) []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(func(s *State) bool { return s.DeviceID == deviceID })
}

// ResetDevice discards every control state of a device and ends its session
// without exporting anything.
func (e *Engine) ResetDevice(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.dropDeviceLocked(deviceID)
	if n > 0 {
		e.logger.Info("Discarded calibration state", zap.String("device", deviceID), zap.Int("controls", n))
	}
}

func (e *Engine) lookupLocked(key Key) *State {
	if st, ok := e.states[key]; ok {
		return st
	}
	if _, ok := e.sessions[key.DeviceID]; !ok {
		s := session{id: uuid.NewString(), started: e.now()}
		e.sessions[key.DeviceID] = s
		e.logger.Info("Calibration session started", zap.String("device", key.DeviceID), zap.String("session", s.id))
	}
	st := &State{
		DeviceID: key.DeviceID,
		ID:       key.ID,
		Name:     e.namer(key.DeviceID, key.ID),
		Deadzone: e.defaultDeadzone,
	}
	e.states[key] = st
	e.logger.Debug("New control", zap.String("device", key.DeviceID), zap.String("control", st.Name), zap.Stringer("id", key.ID))
	return st
}

func (e *Engine) snapshotLocked(keep func(*State) bool) []State {
	out := make([]State, 0, len(e.states))
	for _, st := range e.states {
		if keep(st) {
			out = append(out, st.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].ID.Less(out[j].ID)
	})
	return out
}

func (e *Engine) dropDeviceLocked(deviceID string) int {
	n := 0
	for key := range e.states {
		if key.DeviceID == deviceID {
			delete(e.states, key)
			n++
		}
	}
	delete(e.sessions, deviceID)
	return n
}

func (s *State) normalize(raw float64) float64 {
	n := s.scale(raw)
	if s.Idle.Set {
		idle := s.scale(s.Idle.Value)
		if math.Abs(n-idle) < s.Deadzone {
			n = idle
		}
	}
	if len(s.Easing) > 0 {
		n = s.Easing.Apply(n)
	}
	return n
}

// scale maps raw onto [0,1] using span = |min| + max so that ranges straddling
// zero keep a positive span.
func (s *State) scale(raw float64) float64 {
	if !s.Calibrated() {
		return 0
	}
	offset := math.Abs(s.Min.Value)
	span := math.Max(minSpan, offset+s.Max.Value)
	magnitude := raw + offset
	if s.Invert {
		magnitude = span - magnitude
	}
	v := magnitude / span
	if !numeric.IsFinite(v) {
		return 0
	}
	return numeric.Clamp(v, 0, 1)
}

func (b Bounds) validate() error {
	for _, v := range []float64{b.Min, b.Max, b.Idle, b.Deadzone} {
		if !numeric.IsFinite(v) {
			return fmt.Errorf("%w: non-finite value %v", ErrInvalidBounds, v)
		}
	}
	if b.Deadzone < 0 {
		return fmt.Errorf("%w: negative deadzone %v", ErrInvalidBounds, b.Deadzone)
	}
	return nil
}
