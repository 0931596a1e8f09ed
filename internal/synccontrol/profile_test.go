package synccontrol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputValue(t *testing.T) {
	cases := []struct {
		name    string
		profile Profile
		in      float64
		want    float64
	}{
		{"free range", Profile{Min: 0, Max: 100}, 0.25, 25},
		{"inverted", Profile{Min: 0, Max: 100, Invert: true}, 0.25, 75},
		{"clamped input", Profile{Min: 0, Max: 100}, 1.5, 100},
		{"negative domain", Profile{Min: -1, Max: 1}, 0.5, 0},
		{"closest detent", Profile{Min: 0, Max: 100, Steps: []*float64{f(0), f(25), f(50), nil, f(100)}}, 0.3, 25},
		{"inside free zone", Profile{Min: 0, Max: 100, Steps: []*float64{f(0), f(25), f(50), nil, f(100)}}, 0.7, 70},
		{"free zone edge", Profile{Min: 0, Max: 100, Steps: []*float64{f(0), f(25), f(50), nil, f(100)}}, 0.5, 50},
		{"trailing free zone", Profile{Min: 0, Max: 10, Steps: []*float64{f(0), f(2), nil}}, 0.6, 6},
		{"generated detents", Profile{Min: 0, Max: 1, Step: f(0.25)}, 0.6, 0.5},
		{"generated uneven detents", Profile{Min: 0, Max: 1, Step: f(0.4)}, 0.95, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.profile.OutputValue(tc.in), 1e-9)
		})
	}
}

func TestNormalize(t *testing.T) {
	p := Profile{Min: 0, Max: 100, Deadzone: 0.1}
	assert.Equal(t, 0.0, p.Normalize(5))
	assert.InDelta(t, 0.5, p.Normalize(50), 1e-12)
	assert.Equal(t, 1.0, p.Normalize(150))
	assert.Equal(t, 0.0, p.Normalize(math.NaN()))

	p.Invert = true
	assert.Equal(t, 1.0, p.Normalize(0))
	assert.Equal(t, 1.0, p.Normalize(5), "deadzone applies at the rest end")

	assert.Equal(t, 0.0, Profile{Min: 3, Max: 3}.Normalize(3))
}

func TestProfileValidate(t *testing.T) {
	require.NoError(t, DefaultProfile().Validate())
	require.NoError(t, Profile{Min: 0, Max: 1, Steps: []*float64{f(0), nil, f(1)}}.Validate())

	bad := []Profile{
		{Min: math.Inf(-1), Max: 1},
		{Min: 0, Max: 1, Deadzone: -0.1},
		{Min: 0, Max: 1, Deadzone: 1},
		{Min: 0, Max: 1, MaxRate: -1},
		{Min: 0, Max: 1, Step: f(-1)},
		{Min: 0, Max: 1, Steps: []*float64{f(math.NaN())}},
	}
	for i, p := range bad {
		assert.ErrorIs(t, p.Validate(), ErrInvalidProfile, "profile %d", i)
	}
}
