package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/leeineian/singularity/internal/logger"
)

const (
	pidFileName = ".bot.pid"

	msgKillingOld    = "Another instance (PID %d) is running. Sending SIGTERM..."
	msgOldTerminated = "Previous instance stopped."
)

// pidLock is an exclusive flock on the PID file.
type pidLock struct {
	f *os.File
}

// acquirePIDLock takes the PID file lock, terminating a previous instance
// that still holds it.
func acquirePIDLock(path string) (*pidLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			_ = f.Close()
			return nil, fmt.Errorf("lock pid file: %w", err)
		}

		var oldPID int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPID); scanErr != nil || oldPID == os.Getpid() {
			<-ticker.C
			continue
		}

		logger.LogInfo(msgKillingOld, oldPID)
		stopProcess(oldPID, ticker)
		logger.LogInfo(msgOldTerminated)
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d", os.Getpid())
	_ = f.Sync()
	return &pidLock{f: f}, nil
}

// stopProcess sends SIGTERM and escalates to SIGKILL after five seconds.
func stopProcess(pid int, ticker *time.Ticker) {
	process, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = process.Signal(syscall.SIGTERM)
	if waitExit(process, ticker, 5*time.Second) {
		return
	}

	logger.LogWarn("Old process %d is stubborn. Sending SIGKILL...", pid)
	_ = process.Signal(syscall.SIGKILL)
	if !waitExit(process, ticker, 2*time.Second) {
		logger.LogWarn("Process %d still exists after SIGKILL", pid)
	}
}

func waitExit(process *os.Process, ticker *time.Ticker, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case <-ticker.C:
			if err := process.Signal(syscall.Signal(0)); err != nil {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func (l *pidLock) Release() {
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	_ = l.f.Close()
	_ = os.Remove(l.f.Name())
}
