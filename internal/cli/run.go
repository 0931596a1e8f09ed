package cli

import (
	"context"
	"fmt"
	"io/fs"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soar/ControllerSync/internal/calibration"
	"github.com/soar/ControllerSync/internal/config"
	"github.com/soar/ControllerSync/internal/console"
	"github.com/soar/ControllerSync/internal/device"
	"github.com/soar/ControllerSync/internal/gamepad"
	"github.com/soar/ControllerSync/internal/gamesocket"
	"github.com/soar/ControllerSync/internal/hub"
	"github.com/soar/ControllerSync/internal/logging"
	"github.com/soar/ControllerSync/internal/mqttsink"
	"github.com/soar/ControllerSync/internal/profilestore"
	"github.com/soar/ControllerSync/internal/runner"
	"github.com/soar/ControllerSync/internal/server"
	"github.com/soar/ControllerSync/internal/synccontrol"
	"github.com/soar/ControllerSync/internal/tray"
)

const shutdownTimeout = 5 * time.Second

var (
	_ runner.ControlSink   = (*gamesocket.Socket)(nil)
	_ runner.ControlSink   = (*mqttsink.Sink)(nil)
	_ runner.ProfileSink   = (*mqttsink.Sink)(nil)
	_ runner.ProfileSink   = (*profilestore.Store)(nil)
	_ runner.ProfileSource = (*profilestore.Store)(nil)
	_ runner.ProfileSink   = (*hub.Broadcaster)(nil)
)

func newRunCmd(v *viper.Viper, frontend fs.FS, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Read controllers and sync the mapped game controls",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			attached := console.Attached()

			cfg, err := config.Load(v, *cfgFile)
			if err != nil {
				return err
			}
			if !attached && runtime.GOOS == "windows" {
				// Without a console window the tray is the only way to exit.
				cfg.Server.Tray = true
			}

			logger := logging.NewStdout(cfg.Log)
			defer func() { _ = logger.Sync() }()
			undo := zap.ReplaceGlobals(logger)
			defer undo()

			logger.Info("Starting ControllerSync", zap.String("version", Version), zap.String("addr", cfg.Server.Addr))
			return run(cmd.Context(), logger, cfg, frontend)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "HTTP listen address")
	flags.Bool("tray", true, "show the system tray icon (Windows only)")
	flags.Bool("minify", true, "minify the web interface assets")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this file, rotated")
	flags.Bool("mqtt", false, "publish control states to MQTT")
	flags.String("mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	flags.String("profile-dir", "", "directory calibration profiles are saved to and loaded from")
	return cmd
}

// flagKeys maps config keys to the run flags overriding them.
var flagKeys = map[string]string{
	"server.addr":             "addr",
	"server.tray":             "tray",
	"server.minify":           "minify",
	"log.level":               "log-level",
	"log.file":                "log-file",
	"mqtt.enabled":            "mqtt",
	"mqtt.broker":             "mqtt-broker",
	"calibration.profile_dir": "profile-dir",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config, frontend fs.FS) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	registry := device.NewRegistry()
	calib := calibration.NewEngine(logger,
		calibration.WithNamer(registry.Name),
		calibration.WithDefaultDeadzone(cfg.Engine.DefaultDeadzone))
	engine := synccontrol.NewEngine(logger, synccontrol.WithDefaultProfile(cfg.Engine.DefaultProfile))

	reader := gamepad.NewReader(logger, registry)
	register := console.NotifyInterrupt(stop)
	reader.OnInit = func() {
		if err := register(); err != nil {
			logger.Warn("Failed to restore console control handler", zap.Error(err))
		}
	}

	r := runner.New(logger, cfg.Engine, cfg.Mappings, reader, calib, engine)

	h := hub.NewHub(logger)
	b := hub.NewBroadcaster(h, r.Snapshots(), cfg.Server.FullSyncInterval)
	r.AddProfileSink(b)

	if cfg.Calibration.ProfileDir != "" {
		store, err := profilestore.New(logger, cfg.Calibration.ProfileDir)
		if err != nil {
			return err
		}
		r.AddProfileSink(store)
		r.SetProfileSource(store)
	}

	srv := server.New(logger, h, b, r, frontend, cfg.Server.Addr, cfg.Server.Minify)

	var game *gamesocket.Socket
	if cfg.GameSocket.Enabled {
		game = gamesocket.New(logger, r)
		srv.Handle(cfg.GameSocket.Path, game)
		r.AddControlSink(game)
		logger.Info("Game socket enabled", zap.String("path", cfg.GameSocket.Path))
	}

	if cfg.MQTT.Enabled {
		sink, err := mqttsink.Connect(logger, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer sink.Close()
		r.AddControlSink(sink)
		r.AddProfileSink(sink)
	}

	if cfg.Server.Tray && runtime.GOOS == "windows" {
		t := tray.New(logger, tray.URL(cfg.Server.Addr), tray.Actions{
			Reset: r.ResetAll,
			Shutdown: func() {
				logger.Info("Shutdown requested from tray")
				stop()
			},
		})
		go t.Run(nil)
		defer t.Quit()
	} else {
		logger.Info("Press Ctrl+C to exit")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Run(ctx) })
	g.Go(func() error { return b.Run(ctx) })
	g.Go(func() error { return r.Run(ctx) })
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down...")
		if game != nil {
			game.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	logger.Info("ControllerSync stopped")
	return err
}
