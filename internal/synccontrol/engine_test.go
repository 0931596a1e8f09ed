package synccontrol

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const tick = 10 * time.Millisecond

func f(v float64) *float64 { return &v }

func TestThrottleTravelsAtBoundedRate(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t), WithDefaultProfile(Profile{Min: 0, Max: 100, MaxRate: 1000}))

	st, err := e.SetTarget("throttle", 80)
	require.NoError(t, err)
	assert.Equal(t, 0.0, st.CurrentValue)
	assert.Equal(t, MotionIncreasing, st.Motion)
	assert.True(t, st.Moving)

	for i := 1; i <= 7; i++ {
		changed := e.Tick(tick)
		require.Len(t, changed, 1)
		assert.InDelta(t, float64(i)*10, changed[0].CurrentValue, 1e-9, "tick %d", i)
		assert.True(t, changed[0].Moving, "tick %d", i)
	}
	changed := e.Tick(tick)
	require.Len(t, changed, 1)
	assert.Equal(t, 80.0, changed[0].CurrentValue)
	assert.Equal(t, MotionIdle, changed[0].Motion)
	assert.False(t, changed[0].Moving)
	assert.InDelta(t, 0.8, changed[0].CurrentNormalizedValue, 1e-12)

	assert.Empty(t, e.Tick(tick), "idle controls do not change")
}

func TestTickConvergesAndNeverOvershoots(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	_, err := e.Configure("flaps", "Flaps", "dev", Profile{Min: -50, Max: 50, MaxRate: 33})
	require.NoError(t, err)
	_, err = e.SetTarget("flaps", -37.3)
	require.NoError(t, err)

	prev := -50.0
	for i := 0; i < 1000; i++ {
		changed := e.Tick(tick)
		if len(changed) == 0 {
			break
		}
		cur := changed[0].CurrentValue
		assert.LessOrEqual(t, math.Abs(cur-prev), 33*tick.Seconds()+1e-9)
		assert.LessOrEqual(t, cur, -37.3)
		prev = cur
	}
	st, ok := e.Get("flaps")
	require.True(t, ok)
	assert.Equal(t, -37.3, st.CurrentValue)
	assert.Equal(t, MotionIdle, st.Motion)
}

func TestSetTarget_DirectionChange(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t), WithDefaultProfile(Profile{Min: 0, Max: 100, MaxRate: 1000}))
	_, err := e.SetTarget("lever", 50)
	require.NoError(t, err)
	e.Tick(tick)
	e.Tick(tick)

	st, err := e.SetTarget("lever", 5)
	require.NoError(t, err)
	assert.Equal(t, MotionDecreasing, st.Motion)
	changed := e.Tick(tick)
	require.Len(t, changed, 1)
	assert.InDelta(t, 10, changed[0].CurrentValue, 1e-9)
}

func TestSetTarget_WithinEpsilonStaysIdle(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	st, err := e.SetTarget("trim", 0.004)
	require.NoError(t, err)
	assert.Equal(t, MotionIdle, st.Motion)
	assert.Empty(t, e.Tick(tick))
}

func TestSetTarget_UnknownCreatesDefault(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	st, err := e.SetTarget("brake", 0.5)
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile(), st.Profile)
	assert.Equal(t, 0.0, st.CurrentValue)
	assert.Equal(t, 0.5, st.TargetValue)
}

func TestSetTarget_InvalidLeavesStateUntouched(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	_, err := e.SetTarget("brake", 0.5)
	require.NoError(t, err)
	before, _ := e.Get("brake")

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := e.SetTarget("brake", v)
		assert.ErrorIs(t, err, ErrInvalidTarget)
		_, err = e.SetTarget("ghost", v)
		assert.ErrorIs(t, err, ErrInvalidTarget)
	}
	after, _ := e.Get("brake")
	assert.Equal(t, before, after)
	_, ok := e.Get("ghost")
	assert.False(t, ok)
}

func TestTick_NonPositiveDurationIsNoop(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	_, err := e.SetTarget("x", 1)
	require.NoError(t, err)
	assert.Nil(t, e.Tick(0))
	assert.Nil(t, e.Tick(-time.Second))
	st, _ := e.Get("x")
	assert.Equal(t, 0.0, st.CurrentValue)
}

func TestResetAll(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	_, err := e.Configure("gear", "", "dev", Profile{Min: 10, Max: 20, MaxRate: 100})
	require.NoError(t, err)
	_, err = e.SetTarget("gear", 20)
	require.NoError(t, err)
	e.Tick(50 * time.Millisecond)
	_, err = e.SetTarget("other", 1)
	require.NoError(t, err)

	reset := e.ResetAll()
	require.Len(t, reset, 2)
	for _, st := range reset {
		assert.Equal(t, st.Profile.Min, st.CurrentValue, st.Identifier)
		assert.Equal(t, st.Profile.Min, st.TargetValue, st.Identifier)
		assert.Equal(t, MotionIdle, st.Motion, st.Identifier)
	}
	assert.Equal(t, "gear", reset[0].Identifier)
	assert.Empty(t, e.Tick(tick))
}

func TestReportCurrent(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t), WithDefaultProfile(Profile{Min: 0, Max: 100, MaxRate: 1000}))
	_, err := e.SetTarget("throttle", 80)
	require.NoError(t, err)

	st, err := e.ReportCurrent("throttle", "Throttle", 80)
	require.NoError(t, err)
	assert.Equal(t, MotionIdle, st.Motion)
	assert.Equal(t, "Throttle", st.PropertyName)

	st, err = e.ReportCurrent("throttle", "", 90)
	require.NoError(t, err)
	assert.Equal(t, MotionDecreasing, st.Motion)
	assert.Equal(t, "Throttle", st.PropertyName)

	st, err = e.ReportCurrent("unseen", "Mixture", 0.3)
	require.NoError(t, err)
	assert.Equal(t, 0.3, st.TargetValue)
	assert.Equal(t, MotionIdle, st.Motion)

	_, err = e.ReportCurrent("throttle", "", math.NaN())
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestConfigure(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	_, err := e.SetTarget("prop", 0.5)
	require.NoError(t, err)
	e.Tick(100 * time.Millisecond)

	st, err := e.Configure("prop", "Propeller", "dev-a", Profile{Min: 0, Max: 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, st.CurrentValue, 1e-9, "current kept across reconfigure")
	assert.InDelta(t, 0.05, st.CurrentNormalizedValue, 1e-9)
	assert.Equal(t, DefaultMaxRate, st.Profile.MaxRate)
	assert.Equal(t, DefaultEpsilon, st.Profile.Epsilon)
	assert.Equal(t, "dev-a", st.SourceDevice)

	_, err = e.Configure("bad", "", "", Profile{Min: 0, Max: 1, Deadzone: 1.5})
	assert.ErrorIs(t, err, ErrInvalidProfile)
	_, err = e.Configure("bad", "", "", Profile{Min: math.NaN(), Max: 1})
	assert.ErrorIs(t, err, ErrInvalidProfile)
	_, err = e.Configure("bad", "", "", Profile{Min: 0, Max: 1, Step: f(0)})
	assert.ErrorIs(t, err, ErrInvalidProfile)
	_, ok := e.Get("bad")
	assert.False(t, ok)
}

func TestRemoveAndClear(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	for _, id := range []string{"a", "b", "c"} {
		src := "dev-1"
		if id == "c" {
			src = "dev-2"
		}
		_, err := e.Configure(id, "", src, DefaultProfile())
		require.NoError(t, err)
	}

	assert.True(t, e.Remove("a"))
	assert.False(t, e.Remove("a"))
	assert.Equal(t, 1, e.RemoveSource("dev-1"))
	assert.Equal(t, 0, e.RemoveSource("dev-9"))

	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "c", snap[0].Identifier)

	e.Clear()
	assert.Empty(t, e.Snapshot())
}

func TestSnapshotIsDetached(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	_, err := e.Configure("detent", "", "", Profile{Min: 0, Max: 10, Steps: []*float64{f(0), f(5), f(10)}})
	require.NoError(t, err)

	snap := e.Snapshot()
	*snap[0].Profile.Steps[1] = 7

	st, _ := e.Get("detent")
	assert.Equal(t, 5.0, *st.Profile.Steps[1])
}

func TestConcurrentTargetsAndTicks(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t), WithDefaultProfile(Profile{Min: 0, Max: 100, MaxRate: 500}))
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, err := e.SetTarget("shared", float64((i*7+w)%100))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e.Tick(time.Millisecond)
			_ = e.Snapshot()
		}
	}()
	wg.Wait()

	st, ok := e.Get("shared")
	require.True(t, ok)
	assert.GreaterOrEqual(t, st.CurrentValue, 0.0)
	assert.LessOrEqual(t, st.CurrentValue, 100.0)
}

func TestMotionText(t *testing.T) {
	for m, want := range map[Motion]string{
		MotionDecreasing: "decreasing",
		MotionIdle:       "idle",
		MotionIncreasing: "increasing",
	} {
		b, err := m.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, want, string(b))

		var back Motion
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, m, back)
	}
	var bad Motion
	assert.Error(t, bad.UnmarshalText([]byte("sideways")))
}
