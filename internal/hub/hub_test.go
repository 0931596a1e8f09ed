package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/soar/ControllerSync/internal/calibration"
	"github.com/soar/ControllerSync/internal/device"
	"github.com/soar/ControllerSync/internal/numeric"
	"github.com/soar/ControllerSync/internal/synccontrol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func calState(index int, raw float64) calibration.State {
	return calibration.State{
		DeviceID: "dev",
		ID:       calibration.ControlID{Kind: calibration.KindAxis, Index: index},
		RawValue: raw,
		Min:      calibration.BoundOf(raw),
		Max:      calibration.BoundOf(raw),
	}
}

func TestComputeDelta(t *testing.T) {
	old := Snapshot{
		Devices:     []device.Info{{ID: "dev", Connected: true}},
		Calibration: []calibration.State{calState(0, 1), calState(1, 2)},
		Controls: []synccontrol.State{
			{Identifier: "a", CurrentValue: 1},
			{Identifier: "b", CurrentValue: 2},
		},
	}

	t.Run("no change", func(t *testing.T) {
		assert.True(t, ComputeDelta(old, old).IsEmpty())
	})

	t.Run("changes and removals", func(t *testing.T) {
		next := Snapshot{
			Devices:     old.Devices,
			Calibration: []calibration.State{calState(0, 5)},
			Controls: []synccontrol.State{
				{Identifier: "b", CurrentValue: 2},
				{Identifier: "c"},
			},
		}
		d := ComputeDelta(old, next)
		assert.Nil(t, d.Devices)
		require.Len(t, d.Calibration, 1)
		assert.Equal(t, 5.0, d.Calibration[0].RawValue)
		assert.Equal(t, []calibration.Key{calState(1, 0).Key()}, d.RemovedCalibration)
		require.Len(t, d.Controls, 1)
		assert.Equal(t, "c", d.Controls[0].Identifier)
		assert.Equal(t, []string{"a"}, d.RemovedControls)
	})

	t.Run("device list emptied", func(t *testing.T) {
		d := ComputeDelta(old, Snapshot{Calibration: old.Calibration, Controls: old.Controls})
		require.NotNil(t, d.Devices)
		assert.Empty(t, *d.Devices)
		data, err := json.Marshal(d)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"devices":[]`)
	})

	t.Run("normalized jitter below threshold", func(t *testing.T) {
		a := Snapshot{Controls: []synccontrol.State{{Identifier: "a", CurrentNormalizedValue: 0.5}}}
		b := Snapshot{Controls: []synccontrol.State{{Identifier: "a", CurrentNormalizedValue: 0.5004}}}
		assert.True(t, ComputeDelta(a, b).IsEmpty())
	})
}

func recv(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return WSMessage{}
	}
}

func TestBroadcaster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(zaptest.NewLogger(t))
	hubDone := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(hubDone)
	}()

	changes := make(chan Snapshot, 4)
	b := NewBroadcaster(h, changes, time.Hour)
	bDone := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(bDone)
	}()

	c := &Client{hub: h, send: make(chan []byte, 16)}
	require.True(t, h.Register(c))
	b.SendInitialState(c)
	full := recv(t, c)
	assert.Equal(t, TypeFull, full.Type)
	require.NotNil(t, full.Data)

	changes <- Snapshot{Controls: []synccontrol.State{{Identifier: "throttle", CurrentValue: 10, Moving: true}}}
	delta := recv(t, c)
	assert.Equal(t, TypeDelta, delta.Type)
	assert.Greater(t, delta.Seq, full.Seq)
	require.NotNil(t, delta.Changes)
	require.Len(t, delta.Changes.Controls, 1)
	assert.Equal(t, 10.0, delta.Changes.Controls[0].CurrentValue)

	b.PublishProfile(calibration.Profile{Name: "desk", DeviceID: "dev"})
	prof := recv(t, c)
	assert.Equal(t, TypeCalibrationProfile, prof.Type)
	require.NotNil(t, prof.Profile)
	assert.Equal(t, "desk", prof.Profile.Name)

	cancel()
	<-hubDone
	<-bDone

	_, ok := <-c.send
	assert.False(t, ok, "hub closes client channels on shutdown")
	assert.False(t, c.Send([]byte("late")))
	assert.False(t, h.Register(&Client{hub: h, send: make(chan []byte, 1)}))
}

type fakeCommander struct {
	calls []string
	err   error
}

func (f *fakeCommander) SetOverride(key calibration.Key, b calibration.Bounds) error {
	f.calls = append(f.calls, "override:"+key.ID.String())
	return f.err
}

func (f *fakeCommander) ClearOverride(key calibration.Key) error {
	f.calls = append(f.calls, "clear:"+key.ID.String())
	return f.err
}

func (f *fakeCommander) ResetCalibration(key calibration.Key) {
	f.calls = append(f.calls, "reset:"+key.ID.String())
}

func (f *fakeCommander) SetTarget(identifier string, value float64) error {
	f.calls = append(f.calls, "target:"+identifier)
	return f.err
}

func (f *fakeCommander) ResetAll() {
	f.calls = append(f.calls, "reset_all")
}

func (f *fakeCommander) EndSession(deviceID, name string) error {
	f.calls = append(f.calls, "end:"+deviceID+":"+name)
	return f.err
}

func (f *fakeCommander) SetInvert(key calibration.Key, invert bool) error {
	f.calls = append(f.calls, fmt.Sprintf("invert:%s:%t", key.ID, invert))
	return f.err
}

func (f *fakeCommander) SetEasing(key calibration.Key, c numeric.Curve) error {
	f.calls = append(f.calls, fmt.Sprintf("easing:%s:%d", key.ID, len(c)))
	return f.err
}

func (f *fakeCommander) Rename(key calibration.Key, name string) error {
	f.calls = append(f.calls, "rename:"+key.ID.String()+":"+name)
	return f.err
}

func TestClientHandle(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	c := &Client{hub: h, send: make(chan []byte, 16)}
	cmd := &fakeCommander{}

	for _, raw := range []string{
		`{"type":"set_override","deviceId":"dev","kind":"hat","index":0,"min":0,"max":8}`,
		`{"type":"clear_override","deviceId":"dev","kind":"axis","index":2}`,
		`{"type":"reset_calibration","deviceId":"dev","kind":"button","index":3}`,
		`{"type":"set_target","identifier":"Throttle1","value":0.5}`,
		`{"type":"reset_all"}`,
		`{"type":"end_session","deviceId":"dev","name":"desk"}`,
		`{"type":"set_invert","deviceId":"dev","kind":"axis","index":1,"invert":true}`,
		`{"type":"set_easing","deviceId":"dev","kind":"axis","index":1,"easing":[{"x":0,"y":0},{"x":1,"y":1}]}`,
		`{"type":"rename","deviceId":"dev","kind":"button","index":0,"name":"Horn"}`,
	} {
		c.handle(cmd, []byte(raw))
		assert.Equal(t, TypeAck, recv(t, c).Type, raw)
	}
	assert.Equal(t, []string{
		"override:Hat0", "clear:Axis2", "reset:Button3", "target:Throttle1", "reset_all", "end:dev:desk",
		"invert:Axis1:true", "easing:Axis1:2", "rename:Button0:Horn",
	}, cmd.calls)

	c.handle(cmd, []byte(`{"type":"select_player"}`))
	reply := recv(t, c)
	assert.Equal(t, TypeError, reply.Type)
	assert.Contains(t, reply.Error, "unknown command")

	c.handle(cmd, []byte(`not json`))
	assert.Equal(t, TypeError, recv(t, c).Type)

	cmd.err = errors.New("boom")
	c.handle(cmd, []byte(`{"type":"set_target","identifier":"x","value":1}`))
	reply = recv(t, c)
	assert.Equal(t, TypeError, reply.Type)
	assert.Equal(t, CmdSetTarget, reply.Command)
	assert.Equal(t, "boom", reply.Error)
}
