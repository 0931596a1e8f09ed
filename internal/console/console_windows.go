// Package console detects how the process was started and delivers Ctrl+C
// on Windows, where SDL replaces the console control handler Go installs.
package console

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"unsafe"
)

var (
	kernel32 = syscall.NewLazyDLL("kernel32.dll")

	procGetConsoleWindow           = kernel32.NewProc("GetConsoleWindow")
	procAllocConsole               = kernel32.NewProc("AllocConsole")
	procFreeConsole                = kernel32.NewProc("FreeConsole")
	procGetStdHandle               = kernel32.NewProc("GetStdHandle")
	procCreateToolhelp32Snapshot   = kernel32.NewProc("CreateToolhelp32Snapshot")
	procProcess32First             = kernel32.NewProc("Process32FirstW")
	procProcess32Next              = kernel32.NewProc("Process32NextW")
	procOpenProcess                = kernel32.NewProc("OpenProcess")
	procQueryFullProcessImageNameW = kernel32.NewProc("QueryFullProcessImageNameW")
	procSetConsoleCtrlHandler      = kernel32.NewProc("SetConsoleCtrlHandler")
)

const (
	th32csSnapProcess       = 0x00000002
	processQueryLimitedInfo = 0x1000
	maxPath                 = 260
	ctrlCEvent              = 0
	ctrlBreakEvent          = 1
	stdInputHandle          = ^uintptr(10 - 1) // -10
	stdOutputHandle         = ^uintptr(11 - 1) // -11
	stdErrorHandle          = ^uintptr(12 - 1) // -12
)

type processEntry32 struct {
	Size            uint32
	Usage           uint32
	ProcessID       uint32
	DefaultHeapID   uintptr
	ModuleID        uint32
	Threads         uint32
	ParentProcessID uint32
	PriClassBase    int32
	Flags           uint32
	ExeFile         [maxPath]uint16
}

// Attached reports whether the process runs with a console. A build started
// from Explorer drops the console window it was given and reports false; a
// GUI build started from a terminal gets a console of its own.
func Attached() bool {
	explorer := launchedFromExplorer()
	if hasConsoleWindow() {
		if explorer {
			procFreeConsole.Call()
			return false
		}
		return true
	}
	if explorer {
		return false
	}
	procAllocConsole.Call()
	redirectStdStreams()
	return true
}

func hasConsoleWindow() bool {
	hwnd, _, _ := procGetConsoleWindow.Call()
	return hwnd != 0
}

func redirectStdStreams() {
	stdout, _, _ := procGetStdHandle.Call(stdOutputHandle)
	stderr, _, _ := procGetStdHandle.Call(stdErrorHandle)
	stdin, _, _ := procGetStdHandle.Call(stdInputHandle)
	if stdout == 0 || stderr == 0 {
		return
	}
	os.Stdout = os.NewFile(stdout, "/dev/stdout")
	os.Stderr = os.NewFile(stderr, "/dev/stderr")
	if stdin != 0 {
		os.Stdin = os.NewFile(stdin, "/dev/stdin")
	}
}

func launchedFromExplorer() bool {
	parent := parentProcessID(uint32(os.Getpid()))
	if parent == 0 {
		return false
	}
	return strings.EqualFold(filepath.Base(processImageName(parent)), "explorer.exe")
}

func parentProcessID(pid uint32) uint32 {
	handle, _, _ := procCreateToolhelp32Snapshot.Call(th32csSnapProcess, 0)
	if handle == uintptr(syscall.InvalidHandle) {
		return 0
	}
	defer syscall.CloseHandle(syscall.Handle(handle))

	var entry processEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	ret, _, _ := procProcess32First.Call(handle, uintptr(unsafe.Pointer(&entry)))
	for ret != 0 {
		if entry.ProcessID == pid {
			return entry.ParentProcessID
		}
		ret, _, _ = procProcess32Next.Call(handle, uintptr(unsafe.Pointer(&entry)))
	}
	return 0
}

func processImageName(pid uint32) string {
	process, _, _ := procOpenProcess.Call(processQueryLimitedInfo, 0, uintptr(pid))
	if process == 0 {
		return ""
	}
	defer syscall.CloseHandle(syscall.Handle(process))

	var buf [maxPath]uint16
	size := uint32(maxPath)
	ret, _, _ := procQueryFullProcessImageNameW.Call(process, 0, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if ret == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:size])
}

var (
	handlerOnce sync.Once
	handlerFn   uintptr
	interrupt   func()
	interruptMu sync.Mutex
)

// NotifyInterrupt calls stop once on Ctrl+C or Ctrl+Break. The returned
// function registers the handler again; call it after any library that
// installs its own handler has been initialized.
func NotifyInterrupt(stop func()) (register func() error) {
	var once sync.Once
	interruptMu.Lock()
	interrupt = func() { once.Do(stop) }
	interruptMu.Unlock()

	handlerOnce.Do(func() {
		handlerFn = syscall.NewCallback(func(ctrlType uint32) uintptr {
			if ctrlType != ctrlCEvent && ctrlType != ctrlBreakEvent {
				return 0
			}
			interruptMu.Lock()
			fn := interrupt
			interruptMu.Unlock()
			if fn != nil {
				fn()
			}
			return 1
		})
	})

	register = func() error {
		ret, _, err := procSetConsoleCtrlHandler.Call(handlerFn, 1)
		if ret == 0 {
			return err
		}
		return nil
	}
	_ = register()
	return register
}
