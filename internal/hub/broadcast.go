package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soar/ControllerSync/internal/calibration"
)

const deltaCountSync = 100

// Broadcaster turns state snapshots into full/delta messages for the hub.
// Every deltaCountSync deltas, and on every fullSync tick, a full message is
// sent instead so late or lossy clients converge.
type Broadcaster struct {
	hub      *Hub
	logger   *zap.Logger
	changes  <-chan Snapshot
	fullSync time.Duration

	mu        sync.Mutex
	lastState Snapshot
	seq       int64
}

func NewBroadcaster(h *Hub, changes <-chan Snapshot, fullSync time.Duration) *Broadcaster {
	return &Broadcaster{
		hub:      h,
		logger:   h.logger.Named("broadcast"),
		changes:  changes,
		fullSync: fullSync,
	}
}

// Run starts the broadcaster loop. It returns when ctx is cancelled or the
// changes channel is closed.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.fullSync)
	defer ticker.Stop()

	var deltaCount int64

	for {
		select {
		case <-ctx.Done():
			return nil

		case state, ok := <-b.changes:
			if !ok {
				return nil
			}

			b.mu.Lock()
			delta := ComputeDelta(b.lastState, state)
			b.lastState = state
			if delta.IsEmpty() {
				b.mu.Unlock()
				continue
			}
			b.seq++
			deltaCount++

			var msg *WSMessage
			if deltaCount >= deltaCountSync {
				msg = NewFullMessage(b.seq, &state)
				deltaCount = 0
			} else {
				msg = NewDeltaMessage(b.seq, delta)
			}
			b.mu.Unlock()
			b.broadcast(msg)

		case <-ticker.C:
			b.mu.Lock()
			b.seq++
			state := b.lastState
			msg := NewFullMessage(b.seq, &state)
			b.mu.Unlock()
			b.broadcast(msg)
		}
	}
}

// SendInitialState sends the current full state to a newly connected client.
func (b *Broadcaster) SendInitialState(c *Client) {
	b.mu.Lock()
	b.seq++
	state := b.lastState
	msg := NewFullMessage(b.seq, &state)
	b.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("Error marshaling initial state", zap.Error(err))
		return
	}
	c.Send(data)
}

// PublishProfile announces an exported calibration profile to every client.
func (b *Broadcaster) PublishProfile(p calibration.Profile) {
	b.mu.Lock()
	b.seq++
	msg := NewProfileMessage(b.seq, &p)
	b.mu.Unlock()
	b.broadcast(msg)
}

func (b *Broadcaster) broadcast(msg *WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("Error marshaling message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	b.hub.Broadcast(data)
}
