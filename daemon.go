package updater

import (
	"context"
	"time"
)

const (
	DefaultInterval      = 15 * time.Minute
	DefaultRetryInterval = 61 * time.Minute
)

// CycleRunner is satisfied by *Client.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

type logf interface {
	Printf(string, ...any)
}

// DaemonOptions control the pacing of RunDaemon.
// Zero durations select DefaultInterval and DefaultRetryInterval.
type DaemonOptions struct {
	Interval      time.Duration // wait after a successful cycle
	RetryInterval time.Duration // wait after a failed cycle
	Logger        logf
}

// RunDaemon runs cycles until ctx is cancelled.
//
// A failed cycle never stops the loop; it only switches to the longer retry interval.
// Cancellation abandons the in-flight cycle and returns ctx.Err().
//
// A nil logger for a *Client means that errors go to the logger configured in the client.
func RunDaemon(ctx context.Context, runner CycleRunner, opts DaemonOptions) error {
	interval, retry := opts.Interval, opts.RetryInterval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	logger := opts.Logger
	if logger == nil {
		if c, ok := runner.(*Client); ok && c.logger != nil {
			logger = c.logger
		} else {
			logger = discard
		}
	}

	for {
		wait := interval
		if err := runner.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Printf("cycle failed (%s), retrying in %s: %s", ResultOf(err), retry, err)
			wait = retry
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}
