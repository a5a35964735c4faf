// Package sync implements a single configured source-to-target mirror: it
// owns a delay FIFO, an exclude set, a running-process table, and the
// user-supplied callbacks that decide what to do with ready events.
package sync

import (
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/axkibe/lsyncd-go/pkg/delay"
	"github.com/axkibe/lsyncd-go/pkg/exclude"
	"github.com/axkibe/lsyncd-go/pkg/fifo"
	"github.com/axkibe/lsyncd-go/pkg/inlet"
	"github.com/axkibe/lsyncd-go/pkg/logging"
	"github.com/axkibe/lsyncd-go/pkg/process"
)

// ActionFunc is called for the next ready delay (or batch) in a sync's FIFO.
// It should call Inlet.Spawn to launch a transfer, Inlet.DiscardEvent to
// drop the event without transferring, or neither (the event stays Wait and
// is retried on the next cycle).
type ActionFunc func(in *inlet.Inlet) error

// InitFunc is called once, before a sync's first InvokeActions, to let
// configuration seed the FIFO (typically with a single Blanket delay
// representing the startup reconciliation).
type InitFunc func(in *inlet.Inlet) error

// CollectResult is the outcome a CollectFunc reports for a completed
// process.
type CollectResult string

const (
	// Die terminates the whole daemon with a nonzero exit.
	Die CollectResult = "die"
	// Again returns the delay(s) to Wait for a retry after the sync's delay
	// interval (or one second, whichever is longer).
	Again CollectResult = "again"
	// Done is the conventional "everything else" result: the delay(s) are
	// removed from the FIFO. Any string other than Die or Again is treated
	// the same way; Done exists only for callbacks that want a named value.
	Done CollectResult = "done"
)

// CollectFunc reports what happened to a spawned process and decides what
// should happen to the delay(s) it was registered against.
type CollectFunc func(agent Agent, exitCode int) CollectResult

// Agent is the single delay or delay batch a CollectFunc is being asked to
// resolve, mirroring whatever Inlet.Spawn was called against.
type Agent struct {
	Delay  *delay.Delay
	Delays []*delay.Delay
}

func (a Agent) delaySlice() []*delay.Delay {
	if a.Delays != nil {
		return a.Delays
	}
	if a.Delay != nil {
		return []*delay.Delay{a.Delay}
	}
	return nil
}

// Config is a sync's immutable configuration.
type Config struct {
	// Name is a user-provided display name, used in logs and the status
	// file.
	Name string
	// Source is the absolute source directory, without a trailing slash.
	Source string
	// Target is the target specification: a local path or a remote
	// user@host:path spec, passed through to the action callback verbatim.
	Target string
	// Delay is the settle interval added to an observed event's time to
	// compute its alarm.
	Delay time.Duration
	// MaxProcesses caps concurrent children. Zero means unlimited.
	MaxProcesses int
	// MaxDelays caps the FIFO's best-effort size before the alarm gate is
	// relaxed. Zero means unlimited.
	MaxDelays int
	// OnMove, if false, causes incoming Move events to be decomposed into a
	// Delete plus a Create rather than delivered as a single Move delay.
	OnMove bool

	Action  ActionFunc
	Init    InitFunc
	Collect CollectFunc
	// Collapse, if set, overrides the default collapse table.
	Collapse fifo.CollapseFunc
	// Excludes seeds the sync's exclude set at construction time.
	Excludes []string
}

// Sync binds Config to a live FIFO, exclude set, and process table.
type Sync struct {
	config Config

	// RunID uniquely identifies this sync instance across daemon restarts,
	// so that log lines and status-file snapshots from different runs of
	// the same configured sync can be told apart.
	RunID string

	excludes  exclude.Set
	queue     fifo.Queue
	processes map[int]Agent

	completions chan<- process.Completion
	logger      *logging.Logger
}

// New validates config and constructs a Sync. completions is the channel
// spawned children report their exit on; it is normally the engine's single
// shared completion channel, since child completions are dispatched to
// every sync in turn until one claims the pid.
func New(config Config, completions chan<- process.Completion) (*Sync, error) {
	if config.Source == "" {
		return nil, errors.New("sync configuration is missing a source path")
	}
	if config.Action == nil {
		return nil, errors.Errorf("sync %q has no action defined", config.Name)
	}

	s := &Sync{
		config:      config,
		RunID:       uuid.New().String(),
		processes:   make(map[int]Agent),
		completions: completions,
		logger:      logging.RootLogger.Sublogger(config.Name),
	}
	s.queue.Delay = config.Delay
	s.queue.Collapse = config.Collapse

	for _, pattern := range config.Excludes {
		if err := s.excludes.Add(pattern); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Name returns the sync's display name.
func (s *Sync) Name() string { return s.config.Name }

// SourcePath implements inlet.Sync.
func (s *Sync) SourcePath() string { return s.config.Source }

// TargetSpec implements inlet.Sync.
func (s *Sync) TargetSpec() string { return s.config.Target }

// RunningProcesses returns the number of children currently registered
// against this sync.
func (s *Sync) RunningProcesses() int { return len(s.processes) }

// QueueLen returns the number of delays currently in the FIFO.
func (s *Sync) QueueLen() int { return s.queue.Len() }

// Init seeds the FIFO with the startup Blanket delay and then runs the sync's
// Init callback, if any, with an Inlet presenting that Blanket delay.
func (s *Sync) Init() error {
	if s.config.Init == nil {
		s.AddBlanketDelay()
		return nil
	}
	return s.config.Init(inlet.New(s, s.AddBlanketDelay()))
}

// Delay is the primary entry point fed by the event dispatcher. It applies
// the exclusion filter and Move decomposition described by the
// specification before handing the event to the FIFO's collapse engine.
func (s *Sync) Delay(etype delay.Etype, observed time.Time, path, path2 string) {
	switch etype {
	case delay.Move:
		srcExcluded := s.excludes.Test(path)
		dstExcluded := s.excludes.Test(path2)
		switch {
		case srcExcluded && dstExcluded:
			return
		case dstExcluded:
			s.Delay(delay.Delete, observed, path, "")
			return
		case srcExcluded:
			s.Delay(delay.Create, observed, path2, "")
			return
		}
		if !s.config.OnMove {
			s.Delay(delay.Delete, observed, path, "")
			s.Delay(delay.Create, observed, path2, "")
			return
		}
	case delay.Blanket:
		// Blanket events are never excluded.
	default:
		if s.excludes.Test(path) {
			return
		}
	}

	s.queue.Insert(etype, observed, path, path2)
}

// GetAlarm returns the earliest alarm this sync is willing to wake up for,
// honoring the process-table-full gate.
func (s *Sync) GetAlarm() (time.Time, bool) {
	return s.queue.Alarm(len(s.processes), s.config.MaxProcesses)
}

// readyDelays returns the batch of Wait delays eligible to run at now via
// get_delays, respecting the FIFO-saturation alarm-gate relaxation: once the
// queue is at MaxDelays, a delay is runnable regardless of whether its alarm
// has actually elapsed, so a saturated sync never wedges behind its own
// settle interval.
func (s *Sync) readyDelays(now time.Time) []*delay.Delay {
	gated := s.config.MaxDelays <= 0 || s.queue.Len() < s.config.MaxDelays
	return s.queue.GetDelays(func(d *delay.Delay) bool {
		return d.Status == delay.Wait && (!gated || !d.Alarm.After(now))
	})
}

// InvokeActions drives the action callback for as many ready batches of
// delays as the process table has room for. Every call collapses the whole
// currently-ready batch (spec.md's get_delays) into a single Inlet, so a
// burst of simultaneously-ready delays becomes one economical action
// invocation instead of one process per delay.
func (s *Sync) InvokeActions(now time.Time) {
	for {
		if s.config.MaxProcesses > 0 && len(s.processes) >= s.config.MaxProcesses {
			return
		}

		ready := s.readyDelays(now)
		if len(ready) == 0 {
			return
		}

		in := inlet.NewBatch(s, ready)
		if err := s.config.Action(in); err != nil {
			s.logger.Error(errors.Wrapf(err, "action failed for batch of %d delay(s)", len(ready)))
			return
		}

		if ready[0].Status == delay.Wait {
			s.logger.Printf("action for batch of %d delay(s) neither spawned nor discarded a process, will retry", len(ready))
			return
		}
	}
}

// GetDelays returns the sub-sequence of delays satisfying predicate that
// aren't active or transitively blocked by something active or rejected.
func (s *Sync) GetDelays(predicate func(*delay.Delay) bool) []*delay.Delay {
	return s.queue.GetDelays(predicate)
}

// RemoveDelay excises d from the FIFO, releasing anything directly blocked
// on it.
func (s *Sync) RemoveDelay(d *delay.Delay) {
	s.queue.RemoveDelay(d)
}

// AddBlanketDelay implements inlet.Sync.
func (s *Sync) AddBlanketDelay() *delay.Delay {
	return s.queue.Insert(delay.Blanket, delay.Immediate, "", "")
}

// AddExclude implements inlet.Sync.
func (s *Sync) AddExclude(pattern string) error {
	return s.excludes.Add(pattern)
}

// RemoveExclude implements inlet.Sync.
func (s *Sync) RemoveExclude(pattern string) {
	s.excludes.Remove(pattern)
}

// SpawnProcess implements inlet.Sync.
func (s *Sync) SpawnProcess(cmd *exec.Cmd) (int, error) {
	return process.Spawn(cmd, s.completions)
}

// RegisterProcess implements inlet.Sync.
func (s *Sync) RegisterProcess(pid int, d *delay.Delay) {
	d.Status = delay.Active
	s.processes[pid] = Agent{Delay: d}
}

// RegisterProcessBatch implements inlet.Sync.
func (s *Sync) RegisterProcessBatch(pid int, ds []*delay.Delay) {
	for _, d := range ds {
		d.Status = delay.Active
	}
	s.processes[pid] = Agent{Delays: ds}
}

// Discard implements inlet.Sync.
func (s *Sync) Discard(d *delay.Delay) error {
	if d.Status != delay.Wait {
		s.logger.Warn(errors.Errorf("attempted to discard %s while status is %v, ignoring", d.Path, d.Status))
		return nil
	}
	s.queue.RemoveDelay(d)
	d.Status = delay.Done
	return nil
}

// Collect looks up pid in the process table and, if this sync owns it,
// invokes the Collect callback and resolves the associated delay(s)
// according to its verdict. The second return value is true iff the
// callback returned Die and the daemon must terminate.
func (s *Sync) Collect(pid, exitCode int) (claimed bool, die bool) {
	agent, ok := s.processes[pid]
	if !ok {
		return false, false
	}
	delete(s.processes, pid)

	result := Done
	if s.config.Collect != nil {
		result = s.config.Collect(agent, exitCode)
	} else if exitCode != 0 {
		s.logger.Warn(errors.Errorf("process for %v exited with code %d", agent.delaySlice(), exitCode))
	}

	switch result {
	case Die:
		return true, true
	case Again:
		alarm := time.Now().Add(retryDelay(s.config.Delay))
		for _, d := range agent.delaySlice() {
			d.Status = delay.Wait
			d.Alarm = alarm
		}
	default:
		for _, d := range agent.delaySlice() {
			s.queue.RemoveDelay(d)
		}
	}
	return true, false
}

func retryDelay(configured time.Duration) time.Duration {
	if configured > time.Second {
		return configured
	}
	return time.Second
}

// StatusReport writes a human-readable snapshot of this sync's FIFO and
// exclude set in the format the status file uses.
func (s *Sync) StatusReport(w io.Writer) {
	fmt.Fprintf(w, "%s source=%s run=%s\n", s.config.Name, s.config.Source, s.RunID)

	delays := s.queue.Delays()
	fmt.Fprintf(w, "There are %d delays\n", len(delays))
	for _, d := range delays {
		line := fmt.Sprintf("%s %s %s", d.Status, d.Etype, d.Path)
		if d.Etype == delay.Move {
			line += " -> " + d.Path2
		}
		fmt.Fprintf(w, "%s (alarm %s)\n", line, humanize.Time(d.Alarm))
	}

	fmt.Fprintln(w, "Excluding:")
	for _, pattern := range s.excludes.Patterns() {
		fmt.Fprintln(w, pattern)
	}
}
