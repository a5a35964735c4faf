// Package engine drives the main loop: it owns every configured sync, the
// watch registry, and the process completion channel, and multiplexes
// kernel events, child completions, alarms, and signals into the run/fade
// state machine described by the daemon's design.
package engine

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/axkibe/lsyncd-go/pkg/logging"
	"github.com/axkibe/lsyncd-go/pkg/process"
	"github.com/axkibe/lsyncd-go/pkg/sync"
	"github.com/axkibe/lsyncd-go/pkg/watch"
)

// status is the engine's coarse run state.
type status int

const (
	// statusRun is normal operation: syncs are driven, watches are live.
	statusRun status = iota
	// statusFade means the engine is draining: no new work is spawned, and
	// the engine exits once every sync's process table is empty.
	statusFade
)

// moveReapInterval bounds how long an unpaired MovedFrom is held waiting
// for its MovedTo before it's treated as a plain Delete.
const moveReapInterval = 2 * time.Second

// SyncEntry pairs a configured sync with the watch parameters used to bind
// it into the registry.
type SyncEntry struct {
	Sync         *sync.Sync
	Root         string
	TrackSubdirs bool
}

// Config configures an Engine.
type Config struct {
	// Syncs are the configured mirrors, already constructed via sync.New.
	Syncs []SyncEntry
	// Source is the kernel event facility.
	Source watch.KernelSource
	// MaxWatches bounds the registry's live watch count; zero selects the
	// registry's default.
	MaxWatches int
	// StatusFile, if non-empty, is periodically rewritten with a snapshot
	// of every sync and the watch registry.
	StatusFile string
	// StatusInterval is the minimum interval between status file rewrites.
	StatusInterval time.Duration
	// Completions is the channel every sync.Sync in Syncs was constructed
	// with (via NewCompletions). The engine reads from it, dispatching each
	// completion to whichever sync's process table claims the pid.
	Completions chan process.Completion
	// ProgressFunc, if non-nil, is called once per loop iteration while the
	// engine is in run state with a brief one-line activity summary. It's
	// the engine's only console-facing hook, kept as a plain string sink so
	// the engine itself stays independent of any particular terminal or
	// color implementation; -nodaemon operation is the intended caller.
	ProgressFunc func(summary string)
}

// NewCompletions creates the completion channel that must be passed to
// every sync.New call feeding into the same Engine, before the Engine
// itself is constructed: syncs need the channel to spawn processes, but
// the Engine needs the syncs to be built first.
func NewCompletions() chan process.Completion {
	return make(chan process.Completion, 64)
}

// Engine owns the registry, the shared completion channel, and the
// run/fade state machine.
type Engine struct {
	syncs    []*sync.Sync
	registry *watch.Registry
	source   watch.KernelSource

	completions chan process.Completion

	statusFile     string
	statusInterval time.Duration
	statusWritten  time.Time

	progressFunc func(string)

	status status
	logger *logging.Logger
}

// New constructs an Engine from cfg. It binds every sync into the registry
// (installing its recursive root watch) before returning.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Syncs) == 0 {
		return nil, errors.New("no syncs configured")
	}
	if cfg.Completions == nil {
		return nil, errors.New("engine configured without a completion channel")
	}

	e := &Engine{
		registry:       watch.NewRegistry(cfg.Source, cfg.MaxWatches),
		source:         cfg.Source,
		completions:    cfg.Completions,
		statusFile:     cfg.StatusFile,
		statusInterval: cfg.StatusInterval,
		progressFunc:   cfg.ProgressFunc,
		logger:         logging.RootLogger.Sublogger("engine"),
	}

	for _, entry := range cfg.Syncs {
		if err := e.registry.AddSync(entry.Sync, entry.Root, entry.TrackSubdirs); err != nil {
			return nil, errors.Wrapf(err, "unable to add sync %s", entry.Sync.Name())
		}
		if err := entry.Sync.Init(); err != nil {
			return nil, errors.Wrapf(err, "unable to initialize sync %s", entry.Sync.Name())
		}
		e.syncs = append(e.syncs, entry.Sync)
	}

	return e, nil
}

// Run drives the main loop until fade completes or an unrecoverable error
// occurs. signals delivers the OS signals the caller wants observed (HUP
// and TERM trigger fade; the caller is responsible for registering only
// the signals it cares about via signal.Notify).
func (e *Engine) Run(signals <-chan os.Signal) error {
	for {
		if e.status == statusFade && e.allIdle() {
			return nil
		}

		now := time.Now()
		if e.status == statusRun {
			for _, s := range e.syncs {
				s.InvokeActions(now)
			}
			e.maybeWriteStatus(now)
			if e.progressFunc != nil {
				e.progressFunc(e.summary())
			}
		}

		timer := time.NewTimer(e.nextWake(now))
		select {
		case sig, ok := <-signals:
			timer.Stop()
			if !ok {
				continue
			}
			e.logger.Printf("received signal %v, fading", sig)
			e.status = statusFade

		case ev, ok := <-e.source.Events():
			timer.Stop()
			if !ok {
				continue
			}
			if e.registry.HandleEvent(ev) {
				e.logger.Warn(errors.New("kernel event queue overflowed, fading for a restart"))
				e.status = statusFade
			}

		case err, ok := <-e.source.Errors():
			timer.Stop()
			if ok {
				e.logger.Warn(errors.Wrap(err, "kernel event source reported an error"))
			}

		case c, ok := <-e.completions:
			timer.Stop()
			if !ok {
				continue
			}
			if die := e.collect(c); die {
				return errors.New("a collect callback requested termination")
			}

		case <-timer.C:
		}

		e.registry.Reap(time.Now(), moveReapInterval)
	}
}

// allIdle reports whether every sync has an empty process table, the
// condition fade waits for before the engine exits.
func (e *Engine) allIdle() bool {
	for _, s := range e.syncs {
		if s.RunningProcesses() > 0 {
			return false
		}
	}
	return true
}

// collect dispatches a completion to each sync in turn until one claims
// the pid, matching spec.md's "collect(pid, exitcode) ... calls collect on
// each sync in turn until one claims the pid".
func (e *Engine) collect(c process.Completion) (die bool) {
	for _, s := range e.syncs {
		if claimed, wantsDie := s.Collect(c.Pid, c.ExitCode); claimed {
			return wantsDie
		}
	}
	e.logger.Warn(errors.Errorf("completion for unknown pid %d", c.Pid))
	return false
}

// nextWake computes how long the loop should block before waking on its
// own, honoring every sync's alarm gate and, in fade, a short poll so
// allIdle gets re-checked promptly.
func (e *Engine) nextWake(now time.Time) time.Duration {
	if e.status == statusFade {
		return 200 * time.Millisecond
	}

	soonest := time.Time{}
	for _, s := range e.syncs {
		alarm, ok := s.GetAlarm()
		if !ok {
			continue
		}
		if soonest.IsZero() || alarm.Before(soonest) {
			soonest = alarm
		}
	}

	if e.statusFile != "" {
		due := e.statusWritten.Add(e.statusInterval)
		if soonest.IsZero() || due.Before(soonest) {
			soonest = due
		}
	}

	if soonest.IsZero() {
		return time.Second
	}
	if wait := soonest.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

func (e *Engine) maybeWriteStatus(now time.Time) {
	if e.statusFile == "" {
		return
	}
	if !e.statusWritten.IsZero() && now.Sub(e.statusWritten) < e.statusInterval {
		return
	}
	if err := e.writeStatus(); err != nil {
		e.logger.Warn(errors.Wrap(err, "unable to write status file"))
	}
	e.statusWritten = now
}

func (e *Engine) writeStatus() error {
	f, err := os.OpenFile(e.statusFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	e.renderStatus(f)
	return nil
}

// renderStatus writes the plain-text status report described by spec.md
// §6's status file format: each sync's report, then the watch registry.
func (e *Engine) renderStatus(w io.Writer) {
	for _, s := range e.syncs {
		s.StatusReport(w)
	}
	for _, line := range e.registry.StatusLines() {
		fmt.Fprintln(w, line)
	}
}

// summary renders the one-line activity digest passed to ProgressFunc:
// total queued delays and running child processes across every sync.
func (e *Engine) summary() string {
	var queued, running int
	for _, s := range e.syncs {
		queued += s.QueueLen()
		running += s.RunningProcesses()
	}
	return fmt.Sprintf("%d sync(s), %d queued, %d running", len(e.syncs), queued, running)
}

// Fade transitions the engine into fade without waiting for a signal,
// matching spec.md's "run -> fade" transition on HUP/TERM. It's exported so
// a caller (or a test) can trigger it directly.
func (e *Engine) Fade() {
	e.status = statusFade
}
