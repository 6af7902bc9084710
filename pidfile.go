//go:build unix

package updater

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ReadPIDFile returns the process id stored at path.
func ReadPIDFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s: pid %d", path, pid)
	}
	return pid, nil
}

func WritePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// PIDLock is held by a running worker for as long as it lives.
type PIDLock struct {
	f    *os.File
	path string
	pid  int
}

// LockPIDFile takes an exclusive lock on the pid file and writes the current process id into it.
// It fails with ErrAlreadyRunning when another worker holds the lock.
func LockPIDFile(path string) (*PIDLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s is locked", ErrAlreadyRunning, path)
		}
		return nil, fmt.Errorf("lock pid file: %w", err)
	}
	pid := os.Getpid()
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &PIDLock{f: f, path: path, pid: pid}, nil
}

// Release removes the pid file if it still names this process, then drops the lock.
func (l *PIDLock) Release() error {
	var err error
	if pid, rerr := ReadPIDFile(l.path); rerr == nil && pid == l.pid {
		err = os.Remove(l.path)
	}
	return errors.Join(err, l.f.Close())
}
