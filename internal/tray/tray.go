// Package tray shows the system tray icon and menu.
package tray

import (
	"net"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"

	"fyne.io/systray"
	"go.uber.org/zap"
)

// Actions are the callbacks behind the tray menu items.
type Actions struct {
	// Reset returns every sync control to rest.
	Reset func()
	// Shutdown is called once when "Exit" is clicked.
	Shutdown func()
}

// Tray manages the system tray icon and menu
type Tray struct {
	logger       *zap.Logger
	url          string
	actions      Actions
	once         sync.Once
	shuttingDown atomic.Bool

	menuOpen  *systray.MenuItem
	menuReset *systray.MenuItem
	menuExit  *systray.MenuItem
}

func New(logger *zap.Logger, url string, actions Actions) *Tray {
	return &Tray{
		logger:  logger.Named("tray"),
		url:     url,
		actions: actions,
	}
}

// Run initializes and runs the system tray (blocks until Quit())
func (t *Tray) Run(iconData []byte) {
	systray.Run(func() {
		t.onReady(iconData)
	}, t.onExit)
}

// Quit removes the tray icon and unblocks Run.
func (t *Tray) Quit() {
	if t.shuttingDown.CompareAndSwap(false, true) {
		systray.Quit()
	}
}

func (t *Tray) onReady(iconData []byte) {
	if iconData != nil {
		systray.SetIcon(iconData)
	}
	systray.SetTitle("ControllerSync")
	systray.SetTooltip("ControllerSync - " + t.url)

	t.menuOpen = systray.AddMenuItem("Open Browser", "Open web interface")
	t.menuReset = systray.AddMenuItem("Reset Controls", "Return every synced control to rest")
	systray.AddSeparator()
	t.menuExit = systray.AddMenuItem("Exit", "Quit application")

	go t.handleMenuClicks()

	t.logger.Info("System tray initialized")
}

// handleMenuClicks processes menu item clicks without blocking
func (t *Tray) handleMenuClicks() {
	for {
		select {
		case <-t.menuOpen.ClickedCh:
			if !t.shuttingDown.Load() {
				t.openBrowser()
			}
		case <-t.menuReset.ClickedCh:
			if !t.shuttingDown.Load() && t.actions.Reset != nil {
				t.actions.Reset()
			}
		case <-t.menuExit.ClickedCh:
			if t.shuttingDown.CompareAndSwap(false, true) {
				if t.actions.Shutdown != nil {
					t.once.Do(t.actions.Shutdown)
				}
				systray.Quit()
				return
			}
		}
	}
}

func (t *Tray) onExit() {
	t.shuttingDown.Store(true)
	t.logger.Info("System tray exiting")
}

// openBrowser opens the default web browser
func (t *Tray) openBrowser() {
	cmd := browserCommand(runtime.GOOS, t.url)
	if err := cmd.Start(); err != nil {
		t.logger.Warn("Failed to open browser", zap.String("url", t.url), zap.Error(err))
		return
	}
	go func() { _ = cmd.Wait() }()
}

func browserCommand(goos, url string) *exec.Cmd {
	switch goos {
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		return exec.Command("open", url)
	default:
		return exec.Command("xdg-open", url)
	}
}

// URL returns the address of the web interface served on addr, as opened
// by the tray. Wildcard and empty hosts mean localhost.
func URL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || net.ParseIP(host).IsUnspecified() {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
