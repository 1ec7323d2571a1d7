package job

import (
	"context"
	"errors"
	"fmt"
)

// Launcher guards job launches against the metadata store and hands accepted
// launches to the driver.
//
// `(jobName, CanonicalKey(params))` identifies a job instance; executions are
// children of an instance.
type Launcher struct {
	Store  MetadataStore
	Driver *Driver
	Logger Logger
}

// Launch runs one execution of the named job to completion.
//
// Refusals (exit code 3 at the CLI):
//   - ErrAlreadyRunning while an execution of the instance is STARTED.
//   - ErrAlreadyComplete when the instance already COMPLETED.
//   - ErrRestartNotAllowed when resuming is disabled for this driver.
//
// A prior FAILED or STOPPED execution is resumed from its checkpoint; counts
// carry over so the new execution picks up reading where the old one stopped.
func (l *Launcher) Launch(ctx context.Context, jobName string, params map[string]string, open SourceFactory) (*Execution, error) {
	key := CanonicalKey(params)

	instanceID, err := l.Store.FindOrCreateInstance(ctx, jobName, key)
	if err != nil {
		return nil, fmt.Errorf("job instance %q: %w", jobName, err)
	}

	last, err := l.Store.LastExecution(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	var readCount, skipCount, factCount int64
	if last != nil {
		switch last.Status {
		case StatusStarted:
			return nil, ErrAlreadyRunning
		case StatusCompleted:
			return nil, ErrAlreadyComplete
		case StatusFailed, StatusStopped:
			if !l.Driver.Restartable {
				return nil, ErrRestartNotAllowed
			}
			readCount = last.ReadCount
			skipCount = last.SkipCount
			factCount = last.FactCount
			l.logf("job=%s resuming execution=%d offset=%d", jobName, last.ID, readCount)
		}
	}

	exec, err := l.Store.CreateExecution(ctx, instanceID, readCount, skipCount, factCount)
	if err != nil {
		return nil, err
	}
	l.logf("job=%s execution=%d started", jobName, exec.ID)

	return exec, l.Driver.run(ctx, exec, open)
}

func (l *Launcher) logf(format string, v ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, v...)
	}
}

// ExitCode maps a launch outcome onto the process exit code contract:
// 0 COMPLETED, 1 FAILED, 2 STOPPED, 3 refused.
func ExitCode(exec *Execution, err error) int {
	switch {
	case errors.Is(err, ErrAlreadyRunning),
		errors.Is(err, ErrAlreadyComplete),
		errors.Is(err, ErrRestartNotAllowed):
		return 3
	case exec != nil && exec.Status == StatusStopped:
		return 2
	case err != nil || exec == nil || exec.Status != StatusCompleted:
		return 1
	default:
		return 0
	}
}
