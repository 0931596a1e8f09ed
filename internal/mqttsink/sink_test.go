package mqttsink

import (
	"encoding/json"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/soar/ControllerSync/internal/calibration"
	"github.com/soar/ControllerSync/internal/synccontrol"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	published    []published
	disconnected bool
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.published = append(f.published, published{topic, qos, retained, payload.([]byte)})
	return &mqtt.DummyToken{}
}

func (f *fakeClient) Disconnect(uint) { f.disconnected = true }

func TestPublishControls(t *testing.T) {
	client := &fakeClient{}
	s := New(zaptest.NewLogger(t), client, "sim/", 1, false)

	s.PublishControls([]synccontrol.State{
		{Identifier: "Throttle1", CurrentValue: 0.5, Motion: synccontrol.MotionIncreasing, Moving: true},
		{Identifier: "a/b+c#"},
	})
	require.Len(t, client.published, 2)

	first := client.published[0]
	assert.Equal(t, "sim/controls/Throttle1", first.topic)
	assert.Equal(t, byte(1), first.qos)
	assert.False(t, first.retained)

	var st synccontrol.State
	require.NoError(t, json.Unmarshal(first.payload, &st))
	assert.Equal(t, 0.5, st.CurrentValue)
	assert.True(t, st.Moving)
	assert.Contains(t, string(first.payload), `"motion":"increasing"`)

	assert.Equal(t, "sim/controls/a_b_c_", client.published[1].topic)
}

func TestPublishProfile(t *testing.T) {
	client := &fakeClient{}
	s := New(zaptest.NewLogger(t), client, "sim", 0, false)

	s.PublishProfile(calibration.Profile{Name: "desk", DeviceID: "045e:028e", Controls: []calibration.ControlCalibration{}})
	require.Len(t, client.published, 1)
	assert.Equal(t, "sim/calibration/045e:028e", client.published[0].topic)
	assert.True(t, client.published[0].retained)

	s.Close()
	assert.True(t, client.disconnected)
}
