//go:build !windows

// Package console detects how the process was started and delivers Ctrl+C
// on Windows, where SDL replaces the console control handler Go installs.
package console

// Attached always reports true outside Windows.
func Attached() bool {
	return true
}

// NotifyInterrupt is a no-op outside Windows; os/signal covers it there.
func NotifyInterrupt(stop func()) (register func() error) {
	return func() error { return nil }
}
