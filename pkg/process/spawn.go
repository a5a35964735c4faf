package process

import (
	"bytes"
	"os/exec"

	"github.com/pkg/errors"
)

// Completion reports that a previously spawned child has exited.
type Completion struct {
	// Pid is the process ID that was spawned, used to find the delay(s) it
	// was registered against.
	Pid int
	// ExitCode is the process's exit code, or -1 if it could not be
	// determined (e.g. the process was killed by a signal).
	ExitCode int
	// Err is the error returned by (*exec.Cmd).Wait, if any, enriched with a
	// clearer classification when the shell itself couldn't locate or run
	// the command.
	Err error
}

// Spawn starts cmd and reports its completion on completions once it exits.
// The wait runs on its own goroutine so the caller's single-threaded event
// loop is never blocked on a child. Children run detached from the daemon's
// controlling terminal (via DetachedProcessAttributes) so a signal delivered
// to the daemon's process group doesn't also kill a running rsync/ssh before
// it can finish; the daemon's own design has no cancellation for children in
// flight, they're always waited out to completion.
func Spawn(cmd *exec.Cmd, completions chan<- Completion) (int, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = DetachedProcessAttributes()
	}

	var stderr bytes.Buffer
	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	go func() {
		err := cmd.Wait()
		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
				err = classify(exitErr, stderr.String())
			} else {
				exitCode = -1
			}
		}
		completions <- Completion{Pid: pid, ExitCode: exitCode, Err: err}
	}()
	return pid, nil
}

// classify wraps a nonzero-exit error with a clearer reason when the shell's
// exit code or stderr fragment indicates the command itself couldn't be
// located or run, rather than rsync/ssh reporting their own failure. This is
// the difference between "your exclude pattern was rejected" and "rsync
// isn't installed on the remote end", which otherwise both surface as an
// opaque nonzero exit code.
func classify(exitErr *exec.ExitError, stderrOutput string) error {
	switch {
	case IsPOSIXShellCommandNotFound(exitErr.ProcessState), OutputIsPOSIXCommandNotFound(stderrOutput):
		return errors.Wrap(exitErr, "command not found")
	case IsPOSIXShellInvalidCommand(exitErr.ProcessState):
		return errors.Wrap(exitErr, "command could not be invoked (not executable?)")
	case OutputIsWindowsCommandNotFound(stderrOutput), OutputIsWindowsInvalidCommand(stderrOutput):
		return errors.Wrap(exitErr, "command not found")
	default:
		return exitErr
	}
}
