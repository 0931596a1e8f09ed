package synccontrol

import (
	"fmt"
	"math"

	"github.com/soar/ControllerSync/internal/numeric"
)

const (
	// DefaultMaxRate is the travel speed, in control units per second, of
	// controls created without an explicit profile.
	DefaultMaxRate = 1.0
	// DefaultEpsilon is the distance under which a control counts as arrived.
	DefaultEpsilon = 0.005

	maxAutoSteps = 10000
)

// Profile shapes the output side of a sync control: its travel limits, detents,
// inversion and speed.
type Profile struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
	// Step generates evenly spaced detents between Min and Max when Steps is empty.
	Step *float64 `json:"step,omitempty" mapstructure:"step"`
	// Steps lists detents; a nil entry marks a free range between its neighbours.
	Steps    []*float64 `json:"steps,omitempty" mapstructure:"steps"`
	Invert   bool       `json:"invert,omitempty" mapstructure:"invert"`
	Deadzone float64    `json:"deadzone,omitempty" mapstructure:"deadzone"`
	// MaxRate caps travel per second.
	MaxRate float64 `json:"maxRate" mapstructure:"max_rate"`
	Epsilon float64 `json:"epsilon" mapstructure:"epsilon"`
}

// DefaultProfile is used for controls that receive a target before they are configured.
func DefaultProfile() Profile {
	return Profile{Min: 0, Max: 1, MaxRate: DefaultMaxRate, Epsilon: DefaultEpsilon}
}

// Validate checks that the profile can be used for motion and normalization.
func (p Profile) Validate() error {
	for _, v := range []float64{p.Min, p.Max, p.Deadzone, p.MaxRate, p.Epsilon} {
		if !numeric.IsFinite(v) {
			return fmt.Errorf("%w: non-finite value %v", ErrInvalidProfile, v)
		}
	}
	if p.Deadzone < 0 || p.Deadzone >= 1 {
		return fmt.Errorf("%w: deadzone %v outside [0,1)", ErrInvalidProfile, p.Deadzone)
	}
	if p.MaxRate < 0 || p.Epsilon < 0 {
		return fmt.Errorf("%w: negative rate or epsilon", ErrInvalidProfile)
	}
	if p.Step != nil && (!numeric.IsFinite(*p.Step) || *p.Step <= 0) {
		return fmt.Errorf("%w: step must be positive", ErrInvalidProfile)
	}
	for i, s := range p.Steps {
		if s != nil && !numeric.IsFinite(*s) {
			return fmt.Errorf("%w: step %d is not finite", ErrInvalidProfile, i)
		}
	}
	return nil
}

func (p Profile) withDefaults() Profile {
	if p.MaxRate <= 0 {
		p.MaxRate = DefaultMaxRate
	}
	if p.Epsilon <= 0 {
		p.Epsilon = DefaultEpsilon
	}
	return p
}

func (p Profile) clone() Profile {
	c := p
	if p.Step != nil {
		s := *p.Step
		c.Step = &s
	}
	if p.Steps != nil {
		c.Steps = make([]*float64, len(p.Steps))
		for i, s := range p.Steps {
			if s != nil {
				v := *s
				c.Steps[i] = &v
			}
		}
	}
	return c
}

// Rest is the value a control returns to on reset.
func (p Profile) Rest() float64 {
	return p.Min
}

// Normalize maps a value in the control's domain onto [0,1]. Positions within
// the deadzone of the rest end read as rest.
func (p Profile) Normalize(v float64) float64 {
	span := p.Max - p.Min
	if span == 0 || !numeric.IsFinite(span) || !numeric.IsFinite(v) {
		return 0
	}
	n := numeric.Clamp((v-p.Min)/span, 0, 1)
	if n < p.Deadzone {
		n = 0
	}
	if p.Invert {
		n = 1 - n
	}
	return n
}

// OutputValue converts a normalized [0,1] input into a target in the control's
// domain, snapping to the closest detent unless the value falls into a free range.
func (p Profile) OutputValue(normalized float64) float64 {
	in := numeric.Clamp(normalized, 0, 1)
	if p.Invert {
		in = 1 - in
	}
	lo, hi := math.Min(p.Min, p.Max), math.Max(p.Min, p.Max)
	value := in*math.Abs(p.Max-p.Min) + p.Min

	steps := p.detents()
	if len(steps) == 0 {
		return numeric.Clamp(value, lo, hi)
	}
	for _, zone := range p.freeZones() {
		if value >= zone[0] && value <= zone[1] {
			return numeric.Clamp(value, lo, hi)
		}
	}
	closest := steps[0]
	for _, s := range steps[1:] {
		if math.Abs(value-s) < math.Abs(value-closest) {
			closest = s
		}
	}
	return closest
}

// detents returns the explicit steps, or steps generated from Step.
func (p Profile) detents() []float64 {
	var out []float64
	for _, s := range p.Steps {
		if s != nil {
			out = append(out, *s)
		}
	}
	if len(p.Steps) > 0 || p.Step == nil || *p.Step <= 0 || p.Max <= p.Min {
		return out
	}
	for v := p.Min; len(out) < maxAutoSteps; {
		out = append(out, v)
		v = math.Min(v+*p.Step, p.Max)
		if v >= p.Max {
			out = append(out, p.Max)
			break
		}
	}
	return out
}

// freeZones returns [start, end] ranges covered by nil entries of Steps.
func (p Profile) freeZones() [][2]float64 {
	var zones [][2]float64
	prev := p.Min
	free := false
	for _, s := range p.Steps {
		if s == nil {
			free = true
			continue
		}
		if free {
			zones = append(zones, [2]float64{prev, *s})
		}
		free = false
		prev = *s
	}
	if free {
		zones = append(zones, [2]float64{prev, p.Max})
	}
	return zones
}
