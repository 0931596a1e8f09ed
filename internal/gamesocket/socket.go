// Package gamesocket serves the websocket the in-game mod connects to. Sync
// control positions go out to the mod; the values the game reports come back
// in and replace the simulated current value.
package gamesocket

import (
	"errors"
	"net/http"
	"sync"

	"github.com/lxzan/gws"
	"go.uber.org/zap"

	"github.com/soar/ControllerSync/internal/synccontrol"
)

// Reporter receives control values reported by the game.
type Reporter interface {
	ReportCurrent(identifier, property string, value float64) error
}

// Socket is an http.Handler upgrading game mod connections.
type Socket struct {
	gws.BuiltinEventHandler

	logger   *zap.Logger
	reporter Reporter
	upgrader *gws.Upgrader

	mu    sync.Mutex
	conns map[*gws.Conn]struct{}
}

func New(logger *zap.Logger, reporter Reporter) *Socket {
	s := &Socket{
		logger:   logger.Named("game_socket"),
		reporter: reporter,
		conns:    make(map[*gws.Conn]struct{}),
	}
	s.upgrader = gws.NewUpgrader(s, &gws.ServerOption{
		ReadMaxPayloadSize: 64 * 1024,
	})
	return s
}

func (s *Socket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		s.logger.Warn("Game socket upgrade failed", zap.Error(err))
		return
	}
	go socket.ReadLoop()
}

func (s *Socket) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// PublishControls sends every changed control to every connected game client
// without waiting for the writes to complete.
func (s *Socket) PublishControls(states []synccontrol.State) {
	if len(states) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		payload := []byte(SyncControlMessage(st).String())
		for conn := range s.conns {
			conn.WriteAsync(gws.OpcodeText, payload, func(err error) {
				if err != nil {
					s.logger.Debug("Game socket write failed", zap.Error(err))
				}
			})
		}
	}
}

// Close disconnects every game client.
func (s *Socket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.WriteClose(1000, nil)
	}
}

func (s *Socket) OnOpen(socket *gws.Conn) {
	s.mu.Lock()
	s.conns[socket] = struct{}{}
	n := len(s.conns)
	s.mu.Unlock()
	s.logger.Info("Game client connected", zap.Int("total", n))
}

func (s *Socket) OnClose(socket *gws.Conn, err error) {
	s.mu.Lock()
	delete(s.conns, socket)
	n := len(s.conns)
	s.mu.Unlock()
	s.logger.Info("Game client disconnected", zap.Int("total", n), zap.NamedError("reason", err))
}

func (s *Socket) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (s *Socket) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	if message.Opcode != gws.OpcodeText {
		return
	}

	msg := ParseMessage(message.Data.String())
	if msg.EventName != EventSyncControl {
		s.logger.Debug("Ignoring game message", zap.String("event", msg.EventName))
		return
	}
	if err := s.handleSyncControl(msg); err != nil {
		s.logger.Warn("Invalid sync_control message", zap.String("message", msg.String()), zap.Error(err))
	}
}

var errMissingName = errors.New("missing name")

func (s *Socket) handleSyncControl(msg Message) error {
	name := msg.Properties["name"]
	if name == "" {
		return errMissingName
	}
	value, err := msg.Float("value")
	if err != nil {
		return err
	}
	return s.reporter.ReportCurrent(name, msg.Properties["property"], value)
}
