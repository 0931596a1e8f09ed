package gamesocket

import (
	"sort"
	"strconv"
	"strings"

	"github.com/soar/ControllerSync/internal/synccontrol"
)

// EventSyncControl carries sync control values in both directions.
const EventSyncControl = "sync_control"

// Message is one line of the game mod protocol:
// "<event>,<key>=<value>,<key>=<value>...".
type Message struct {
	EventName  string
	Properties map[string]string
}

// ParseMessage decodes a protocol line. Parts without "=" are ignored.
func ParseMessage(msg string) Message {
	parts := strings.Split(msg, ",")
	result := Message{
		EventName:  strings.TrimSpace(parts[0]),
		Properties: make(map[string]string),
	}
	for _, p := range parts[1:] {
		if kv := strings.SplitN(p, "=", 2); len(kv) == 2 {
			result.Properties[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return result
}

// String encodes the message with its properties in key order.
func (m Message) String() string {
	var sb strings.Builder
	sb.WriteString(m.EventName)

	keys := make([]string, 0, len(m.Properties))
	for k := range m.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sb.WriteString(",")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(m.Properties[k])
	}
	return sb.String()
}

// Float returns a numeric property.
func (m Message) Float(key string) (float64, error) {
	return strconv.ParseFloat(m.Properties[key], 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SyncControlMessage encodes the state the game should apply to a control.
func SyncControlMessage(st synccontrol.State) Message {
	return Message{
		EventName: EventSyncControl,
		Properties: map[string]string{
			"name":             st.Identifier,
			"property":         st.PropertyName,
			"value":            formatFloat(st.CurrentValue),
			"normalized_value": formatFloat(st.CurrentNormalizedValue),
			"moving":           strconv.Itoa(int(st.Motion)),
		},
	}
}
