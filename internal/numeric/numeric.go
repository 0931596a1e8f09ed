// Package numeric holds the small math helpers shared by the calibration and
// sync-control engines.
package numeric

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidCurve is returned when an easing curve is not a monotone mapping of [0,1].
var ErrInvalidCurve = errors.New("invalid easing curve")

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Point is a single control point of an easing curve.
type Point struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
}

// Curve remaps a normalized input to a normalized output by linear
// interpolation between control points. A nil curve is the identity.
type Curve []Point

// Validate checks that all points lie in [0,1], X is strictly increasing and
// Y is non-decreasing. Points are expected in X order.
func (c Curve) Validate() error {
	if len(c) == 0 {
		return nil
	}
	if len(c) < 2 {
		return fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidCurve, len(c))
	}
	for i, p := range c {
		if !IsFinite(p.X) || !IsFinite(p.Y) || p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return fmt.Errorf("%w: point %d (%v, %v) outside [0,1]", ErrInvalidCurve, i, p.X, p.Y)
		}
		if i == 0 {
			continue
		}
		prev := c[i-1]
		if p.X <= prev.X {
			return fmt.Errorf("%w: x must be strictly increasing at point %d", ErrInvalidCurve, i)
		}
		if p.Y < prev.Y {
			return fmt.Errorf("%w: y must be non-decreasing at point %d", ErrInvalidCurve, i)
		}
	}
	return nil
}

// Apply maps v through the curve. Inputs before the first point or past the
// last point take that point's Y.
func (c Curve) Apply(v float64) float64 {
	if len(c) == 0 {
		return v
	}
	if v <= c[0].X {
		return c[0].Y
	}
	last := c[len(c)-1]
	if v >= last.X {
		return last.Y
	}
	// first point with X >= v; guaranteed to be in [1, len-1]
	i := sort.Search(len(c), func(i int) bool { return c[i].X >= v })
	a, b := c[i-1], c[i]
	t := (v - a.X) / (b.X - a.X)
	return a.Y + t*(b.Y-a.Y)
}

// Clone returns an independent copy of the curve.
func (c Curve) Clone() Curve {
	if c == nil {
		return nil
	}
	out := make(Curve, len(c))
	copy(out, c)
	return out
}
