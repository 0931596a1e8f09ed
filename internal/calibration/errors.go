package calibration

import (
	"errors"

	"github.com/soar/ControllerSync/internal/numeric"
)

var (
	// ErrInvalidSample is returned for non-finite raw values. State is left untouched.
	ErrInvalidSample = errors.New("invalid sample")
	// ErrInvalidBounds is returned when authored bounds are unusable.
	ErrInvalidBounds = errors.New("invalid calibration bounds")
	// ErrUnknownControl is returned when mutating a control the engine has never seen.
	ErrUnknownControl = errors.New("unknown control")
	// ErrProfileLoad wraps every failure of Engine.Load.
	ErrProfileLoad = errors.New("calibration profile load failed")
	// ErrInvalidCurve is returned for easing curves that are not monotone on [0,1].
	ErrInvalidCurve = numeric.ErrInvalidCurve
)
