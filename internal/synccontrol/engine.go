// Package synccontrol moves virtual controls of the target application toward
// their targets at a bounded rate, the way a physical lever travels, instead of
// snapping them into place.
package synccontrol

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soar/ControllerSync/internal/numeric"
)

var (
	// ErrInvalidTarget is returned for non-finite target or reported values.
	ErrInvalidTarget = errors.New("invalid sync control value")
	// ErrInvalidProfile is returned by Configure for unusable profiles.
	ErrInvalidProfile = errors.New("invalid sync control profile")
)

// Motion is the travel direction of a control.
type Motion int8

const (
	MotionDecreasing Motion = -1
	MotionIdle       Motion = 0
	MotionIncreasing Motion = 1
)

func (m Motion) String() string {
	switch m {
	case MotionDecreasing:
		return "decreasing"
	case MotionIncreasing:
		return "increasing"
	default:
		return "idle"
	}
}

func (m Motion) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Motion) UnmarshalText(b []byte) error {
	switch string(b) {
	case "decreasing":
		*m = MotionDecreasing
	case "increasing":
		*m = MotionIncreasing
	case "idle":
		*m = MotionIdle
	default:
		return fmt.Errorf("unknown motion %q", b)
	}
	return nil
}

// State is a snapshot of one sync control.
type State struct {
	Identifier             string  `json:"identifier"`
	PropertyName           string  `json:"propertyName,omitempty"`
	SourceDevice           string  `json:"sourceDevice,omitempty"`
	CurrentValue           float64 `json:"currentValue"`
	CurrentNormalizedValue float64 `json:"currentNormalizedValue"`
	TargetValue            float64 `json:"targetValue"`
	Motion                 Motion  `json:"motion"`
	Moving                 bool    `json:"moving"`
	Profile                Profile `json:"profile"`
}

func (s *State) clone() State {
	c := *s
	c.Profile = s.Profile.clone()
	return c
}

func (s *State) setMotion(m Motion) {
	s.Motion = m
	s.Moving = m != MotionIdle
}

// retarget derives the motion from the distance to target. A control already
// approaching keeps going until a tick lands it within epsilon.
func (s *State) retarget() {
	dist := s.TargetValue - s.CurrentValue
	switch {
	case math.Abs(dist) > s.Profile.Epsilon && dist > 0:
		s.setMotion(MotionIncreasing)
	case math.Abs(dist) > s.Profile.Epsilon:
		s.setMotion(MotionDecreasing)
	}
}

func (s *State) rest() {
	s.CurrentValue = s.Profile.Rest()
	s.TargetValue = s.CurrentValue
	s.CurrentNormalizedValue = s.Profile.Normalize(s.CurrentValue)
	s.setMotion(MotionIdle)
}

// Engine owns the state of all sync controls. All methods are safe for
// concurrent use; Tick and SetTarget are serialized on one lock.
type Engine struct {
	logger         *zap.Logger
	defaultProfile Profile

	mu       sync.Mutex
	controls map[string]*State
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultProfile sets the profile given to controls created by SetTarget
// before they were configured.
func WithDefaultProfile(p Profile) Option {
	return func(e *Engine) {
		if p.Validate() == nil {
			e.defaultProfile = p.withDefaults()
		}
	}
}

// NewEngine creates an empty engine.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:         logger.Named("sync_control"),
		defaultProfile: DefaultProfile(),
		controls:       make(map[string]*State),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configure creates or updates a control from an activated profile. An
// existing control keeps its current value and target.
func (e *Engine) Configure(identifier, propertyName, sourceDevice string, p Profile) (State, error) {
	if err := p.Validate(); err != nil {
		return State{}, fmt.Errorf("configure %q: %w", identifier, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.controls[identifier]
	if !ok {
		st = &State{Identifier: identifier, Profile: p.withDefaults().clone()}
		st.rest()
		e.controls[identifier] = st
	} else {
		st.Profile = p.withDefaults().clone()
		st.CurrentNormalizedValue = st.Profile.Normalize(st.CurrentValue)
		st.retarget()
	}
	if propertyName != "" {
		st.PropertyName = propertyName
	}
	st.SourceDevice = sourceDevice

	e.logger.Debug("Sync control configured",
		zap.String("identifier", identifier),
		zap.Float64("min", st.Profile.Min),
		zap.Float64("max", st.Profile.Max),
		zap.Float64("max_rate", st.Profile.MaxRate))
	return st.clone(), nil
}

// SetTarget sets the value a control travels toward. Unknown identifiers are
// created with the default profile since targets may arrive before the
// control's profile does.
func (e *Engine) SetTarget(identifier string, target float64) (State, error) {
	if !numeric.IsFinite(target) {
		return State{}, fmt.Errorf("%w: target %v for %q", ErrInvalidTarget, target, identifier)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.controls[identifier]
	if !ok {
		st = &State{Identifier: identifier, Profile: e.defaultProfile.clone()}
		st.rest()
		e.controls[identifier] = st
		e.logger.Debug("Sync control created from target", zap.String("identifier", identifier))
	}
	st.TargetValue = target
	st.retarget()
	return st.clone(), nil
}

// ReportCurrent records the value the target application reports for a
// control. The reported value replaces the simulated one.
func (e *Engine) ReportCurrent(identifier, propertyName string, value float64) (State, error) {
	if !numeric.IsFinite(value) {
		return State{}, fmt.Errorf("%w: reported %v for %q", ErrInvalidTarget, value, identifier)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.controls[identifier]
	if !ok {
		st = &State{Identifier: identifier, Profile: e.defaultProfile.clone(), TargetValue: value}
		e.controls[identifier] = st
	}
	if propertyName != "" {
		st.PropertyName = propertyName
	}
	st.CurrentValue = value
	st.CurrentNormalizedValue = st.Profile.Normalize(value)
	if math.Abs(st.TargetValue-value) <= st.Profile.Epsilon {
		st.setMotion(MotionIdle)
	} else {
		st.retarget()
	}
	return st.clone(), nil
}

// Tick advances every moving control by at most MaxRate*dt toward its target
// and returns the controls that changed. Controls landing within epsilon snap
// to the target and become idle.
func (e *Engine) Tick(dt time.Duration) []State {
	if dt <= 0 {
		return nil
	}
	seconds := dt.Seconds()

	e.mu.Lock()
	defer e.mu.Unlock()

	var changed []State
	for _, st := range e.controls {
		if st.Motion == MotionIdle {
			continue
		}
		dist := st.TargetValue - st.CurrentValue
		step := st.Profile.MaxRate * seconds
		if math.Abs(dist) <= step {
			st.CurrentValue = st.TargetValue
		} else {
			st.CurrentValue += math.Copysign(step, dist)
		}
		if math.Abs(st.TargetValue-st.CurrentValue) <= st.Profile.Epsilon {
			st.CurrentValue = st.TargetValue
			st.setMotion(MotionIdle)
		} else {
			st.retarget()
		}
		st.CurrentNormalizedValue = st.Profile.Normalize(st.CurrentValue)
		changed = append(changed, st.clone())
	}
	sortStates(changed)
	return changed
}

// ResetAll returns every control to its rest value.
func (e *Engine) ResetAll() []State {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]State, 0, len(e.controls))
	for _, st := range e.controls {
		st.rest()
		out = append(out, st.clone())
	}
	sortStates(out)
	if len(out) > 0 {
		e.logger.Info("Sync controls reset", zap.Int("controls", len(out)))
	}
	return out
}

// Remove deletes a control.
func (e *Engine) Remove(identifier string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.controls[identifier]
	delete(e.controls, identifier)
	return ok
}

// RemoveSource deletes every control driven by the given device.
func (e *Engine) RemoveSource(deviceID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, st := range e.controls {
		if st.SourceDevice == deviceID {
			delete(e.controls, id)
			n++
		}
	}
	if n > 0 {
		e.logger.Info("Sync controls removed", zap.String("device", deviceID), zap.Int("controls", n))
	}
	return n
}

// Clear deletes every control.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.controls = make(map[string]*State)
}

// Get returns a copy of one control.
func (e *Engine) Get(identifier string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.controls[identifier]
	if !ok {
		return State{}, false
	}
	return st.clone(), true
}

// Snapshot returns copies of all controls ordered by identifier.
func (e *Engine) Snapshot() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]State, 0, len(e.controls))
	for _, st := range e.controls {
		out = append(out, st.clone())
	}
	sortStates(out)
	return out
}

func sortStates(s []State) {
	sort.Slice(s, func(i, j int) bool { return s[i].Identifier < s[j].Identifier })
}
