package server

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"go.uber.org/zap"

	"github.com/soar/ControllerSync/internal/hub"
)

type Server struct {
	logger      *zap.Logger
	hub         *hub.Hub
	broadcaster *hub.Broadcaster
	commander   hub.Commander
	frontendFS  fs.FS
	addr        string
	minify      bool
	routes      map[string]http.Handler
	httpServer  *http.Server
}

func New(logger *zap.Logger, h *hub.Hub, b *hub.Broadcaster, cmd hub.Commander, frontendFS fs.FS, addr string, minifyAssets bool) *Server {
	return &Server{
		logger:      logger.Named("server"),
		hub:         h,
		broadcaster: b,
		commander:   cmd,
		frontendFS:  frontendFS,
		addr:        addr,
		minify:      minifyAssets,
		routes:      make(map[string]http.Handler),
	}
}

// Handle mounts an extra handler. It must be called before ListenAndServe.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.routes[pattern] = h
}

// Handler builds the HTTP handler serving the UI websocket, the extra routes
// and the static frontend.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", handleWebSocket(s.logger, s.hub, s.broadcaster, s.commander))
	for pattern, h := range s.routes {
		mux.Handle(pattern, h)
	}

	var static http.Handler = http.FileServer(http.FS(s.frontendFS))
	if s.minify {
		static = newMinifier().Middleware(static)
	}
	mux.Handle("/", static)
	return mux
}

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return m
}

// ListenAndServe serves until Shutdown is called. It returns nil after a
// clean shutdown.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	s.logger.Info("HTTP server listening", zap.String("addr", s.addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		s.logger.Info("Shutting down HTTP server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
