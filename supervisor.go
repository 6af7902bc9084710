//go:build unix

package updater

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// State is the liveness of the background worker as derived from the pid file.
type State int

const (
	NotRunning State = iota
	Running
	// Stale means the pid file names a process that no longer exists.
	// It is reported as not running; the file stays until the next start overwrites it.
	Stale
)

func (s State) String() string {
	switch s {
	case NotRunning:
		return "not running"
	case Running:
		return "running"
	case Stale:
		return "not running (stale pid file)"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// processTable is the slice of the operating system the supervisor depends on.
type processTable interface {
	Alive(pid int) bool
	Signal(pid int, sig syscall.Signal) error
	Spawn(cmd *exec.Cmd) (int, error)
}

type unixProcesses struct{}

func (unixProcesses) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func (unixProcesses) Signal(pid int, sig syscall.Signal) error {
	return unix.Kill(pid, sig)
}

func (unixProcesses) Spawn(cmd *exec.Cmd) (int, error) {
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// the worker outlives this process; nobody waits on it here
	return pid, cmd.Process.Release()
}

// Supervisor starts, stops and inspects the background worker.
//
// The pid file is the only record of the worker shared between invocations.
// Every check is a snapshot: the worker may exit between Status and any action taken on it.
type Supervisor struct {
	PIDFile string
	LogFile string

	// Worker builds the command that runs the daemon loop in the background.
	Worker func() *exec.Cmd

	// GracePeriod is how long Restart waits for a stopped worker to exit.
	GracePeriod time.Duration
	// StopAttempts bounds the stop/wait rounds of Restart.
	StopAttempts int

	Logger *log.Logger

	procs processTable
	sleep func(time.Duration)
}

func NewSupervisor(pidFile, logFile string, worker func() *exec.Cmd, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = discard
	}
	return &Supervisor{
		PIDFile:      pidFile,
		LogFile:      logFile,
		Worker:       worker,
		GracePeriod:  3 * time.Second,
		StopAttempts: 3,
		Logger:       logger,
		procs:        unixProcesses{},
		sleep:        time.Sleep,
	}
}

// Status reads the pid file and checks whether the process it names exists.
func (s *Supervisor) Status() (State, int) {
	pid, err := ReadPIDFile(s.PIDFile)
	if errors.Is(err, fs.ErrNotExist) {
		s.Logger.Printf("%s not found! DNS Updater is not running.", filepath.Base(s.PIDFile))
		return NotRunning, 0
	}
	if err != nil {
		s.Logger.Printf("DNS Updater is not running: %s", err)
		return Stale, 0
	}
	if !s.procs.Alive(pid) {
		s.Logger.Printf("DNS Updater is not running! %s names PID %d which does not exist.", filepath.Base(s.PIDFile), pid)
		return Stale, pid
	}
	s.Logger.Printf("DNS Updater running as PID: %d", pid)
	return Running, pid
}

// Start spawns the worker in its own session with output appended to the log file.
// It does nothing when a worker is already running.
func (s *Supervisor) Start() (int, error) {
	if state, pid := s.Status(); state == Running {
		return pid, nil
	}
	if s.Worker == nil {
		return 0, errors.New("supervisor has no worker command")
	}

	devnull, err := os.Open(os.DevNull)
	if err != nil {
		return 0, err
	}
	defer devnull.Close()
	logf, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer logf.Close()

	cmd := s.Worker()
	cmd.Stdin = devnull
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	pid, err := s.procs.Spawn(cmd)
	if err != nil {
		return 0, fmt.Errorf("start worker: %w", err)
	}
	s.Logger.Printf("Writing %d to %s", pid, s.PIDFile)
	if err := WritePIDFile(s.PIDFile, pid); err != nil {
		return pid, fmt.Errorf("write pid file: %w", err)
	}
	s.Logger.Printf("DNS Updater is running as PID: %d", pid)
	return pid, nil
}

// Stop signals the running worker to terminate and deletes the pid file.
func (s *Supervisor) Stop() error {
	state, pid := s.Status()
	if state != Running {
		return ErrNotRunning
	}
	s.Logger.Printf("Stopping DNS Updater, PID: %d.", pid)
	if err := s.terminate(pid); err != nil {
		return err
	}
	if err := os.Remove(s.PIDFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	s.Status()
	return nil
}

// Restart stops the running worker, giving it StopAttempts chances to exit, then starts a new one.
// If the old worker survives every attempt no new worker is started and ErrRestartExhausted is returned.
func (s *Supervisor) Restart() (int, error) {
	state, pid := s.Status()
	for attempt := 0; state == Running; attempt++ {
		if attempt == s.StopAttempts {
			s.Logger.Printf("ERROR: Could not stop DNS Updater PID: %d", pid)
			return pid, fmt.Errorf("%w: PID %d survived %d attempts", ErrRestartExhausted, pid, attempt)
		}
		s.Logger.Printf("Stopping DNS Updater PID %d (attempt %d)...", pid, attempt+1)
		if err := s.terminate(pid); err != nil {
			s.Logger.Printf("stop: %s", err)
		}
		s.sleep(s.GracePeriod)
		// the pid file is kept until the process is gone so Status keeps telling the truth
		if !s.procs.Alive(pid) {
			s.removePIDFileFor(pid)
		}
		state, pid = s.Status()
	}
	s.Logger.Printf("DNS Updater is not running.")
	return s.Start()
}

func (s *Supervisor) terminate(pid int) error {
	err := s.procs.Signal(pid, syscall.SIGTERM)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal PID %d: %w", pid, err)
	}
	return nil
}

func (s *Supervisor) removePIDFileFor(pid int) {
	if cur, err := ReadPIDFile(s.PIDFile); err == nil && cur == pid {
		os.Remove(s.PIDFile)
	}
}

// WorkerContext wires the two lifecycle events of a worker to the operating system:
// a hang-up is ignored so the worker survives the loss of its terminal,
// and a termination request cancels the returned context.
func WorkerContext(parent context.Context) (context.Context, context.CancelFunc) {
	signal.Ignore(syscall.SIGHUP)
	return signal.NotifyContext(parent, syscall.SIGTERM, os.Interrupt)
}
