// Package fifo implements the per-sync delay queue: the ordered list of
// pending filesystem changes plus the collapse rules that fold a newly
// observed event into whatever is already queued for the same path.
package fifo

import (
	"strings"
	"time"

	"github.com/axkibe/lsyncd-go/pkg/delay"
)

// kind is the six-way discriminant the default collapse table is indexed
// by. A Move delay contributes two kinds (its origin and its destination),
// everything else contributes exactly one.
type kind int

const (
	kAttrib kind = iota
	kModify
	kCreate
	kDelete
	kMoveFr
	kMoveTo
)

// code is the outcome of comparing an existing ("old") delay against an
// incoming ("new") one on the same or a related path.
type code int

const (
	// continueScan means this pair says nothing about whether nd collapses
	// against od; the scan should keep walking toward the head.
	continueScan code = iota - 1
	nullify
	absorb
	replace
	stack
)

// defaultTable is the static 6x6 collapse table from the specification,
// rows indexed by the old delay's kind, columns by the new delay's kind.
var defaultTable = [6][6]code{
	kAttrib:  {kAttrib: absorb, kModify: replace, kCreate: replace, kDelete: replace, kMoveFr: stack, kMoveTo: replace},
	kModify:  {kAttrib: absorb, kModify: absorb, kCreate: replace, kDelete: replace, kMoveFr: stack, kMoveTo: replace},
	kCreate:  {kAttrib: absorb, kModify: absorb, kCreate: absorb, kDelete: nullify, kMoveFr: stack, kMoveTo: replace},
	kDelete:  {kAttrib: absorb, kModify: absorb, kCreate: stack, kDelete: absorb, kMoveFr: stack, kMoveTo: replace},
	kMoveFr:  {kAttrib: stack, kModify: stack, kCreate: stack, kDelete: stack, kMoveFr: stack, kMoveTo: stack},
	kMoveTo:  {kAttrib: stack, kModify: stack, kCreate: replace, kDelete: replace, kMoveFr: stack, kMoveTo: replace},
}

// CollapseFunc allows a sync to override the default collapse table. It
// receives the whole old and new delays, and is consulted only when one of
// their sub-event pairs lies on the same path (and the old delay isn't
// Active). It returns one of the code constants, or continueScan if it
// defers to the default table.
type CollapseFunc func(od, nd *delay.Delay) code

func kindOf(etype delay.Etype, isOrigin bool) kind {
	switch etype {
	case delay.Attrib:
		return kAttrib
	case delay.Modify:
		return kModify
	case delay.Create:
		return kCreate
	case delay.Delete:
		return kDelete
	case delay.Move:
		if isOrigin {
			return kMoveFr
		}
		return kMoveTo
	}
	panic("fifo: kindOf called with non-collapsible etype")
}

type subEvent struct {
	kind kind
	path string
}

func subEvents(d *delay.Delay) []subEvent {
	if d.Etype == delay.Move {
		return []subEvent{{kMoveFr, d.Path}, {kMoveTo, d.Path2}}
	}
	return []subEvent{{kindOf(d.Etype, false), d.Path}}
}

// isDirPrefix reports whether parent is a directory path that is a strict
// prefix of child.
func isDirPrefix(parent, child string) bool {
	if !strings.HasSuffix(parent, "/") {
		return false
	}
	return parent != child && strings.HasPrefix(child, parent)
}

func related(a, b string) bool {
	return a == b || isDirPrefix(a, b) || isDirPrefix(b, a)
}

// Queue is a single sync's delay FIFO. The zero value is ready to use.
type Queue struct {
	// Delay is the configured settle interval added to an event's
	// observation time to compute its alarm.
	Delay time.Duration
	// Collapse, if non-nil, is consulted in place of the default table.
	Collapse CollapseFunc

	delays []*delay.Delay
}

// Len returns the number of delays currently queued.
func (q *Queue) Len() int {
	return len(q.delays)
}

// Delays returns the queue's contents in FIFO order. The returned slice
// aliases internal state and must not be mutated by the caller.
func (q *Queue) Delays() []*delay.Delay {
	return q.delays
}

// evaluate compares od against nd across every applicable sub-event pair,
// in the order the specification lays out for Move-bearing delays: (od,nd),
// (od2,nd), (od,nd2), (od2,nd2). It returns the first decisive code, or
// continueScan if every pair concerns unrelated paths.
func (q *Queue) evaluate(od, nd *delay.Delay) code {
	oldSubs := subEvents(od)
	newSubs := subEvents(nd)

	for _, n := range newSubs {
		for _, o := range oldSubs {
			if o.path == n.path {
				if od.Status == delay.Active {
					return stack
				}
				if q.Collapse != nil {
					if c := q.Collapse(od, nd); c != continueScan {
						return c
					}
				}
				return defaultTable[o.kind][n.kind]
			}
			if isDirPrefix(o.path, n.path) || isDirPrefix(n.path, o.path) {
				return stack
			}
		}
	}
	return continueScan
}

// Insert applies steps 3 through 6 of the collapse algorithm: it assigns an
// alarm, stacks onto a trailing Blanket delay if present, walks the queue
// tail-to-head looking for a collapse decision, and appends a fresh Wait
// delay if nothing collapsed it. Exclusion filtering and Move decomposition
// are the caller's responsibility (see pkg/sync), since they require
// information (the exclude set, whether the action opts into raw Move
// events) that the queue itself does not own.
//
// It returns the newly queued delay, or nil if no new delay was queued: the
// event was absorbed, nullified an existing entry, or replaced an existing
// non-Move entry's etype in place.
func (q *Queue) Insert(etype delay.Etype, observed time.Time, path, path2 string) *delay.Delay {
	alarm := delay.Immediate
	if etype != delay.Blanket {
		if observed.IsZero() {
			alarm = time.Now()
		} else {
			alarm = observed.Add(q.Delay)
		}
	}

	nd := delay.New(etype, alarm, path, path2)

	if etype == delay.Blanket {
		if n := len(q.delays); n > 0 {
			tail := q.delays[n-1]
			nd.Status = delay.Block
			tail.Blocks = append(tail.Blocks, nd)
		}
		q.delays = append(q.delays, nd)
		return nd
	}

	for i := len(q.delays) - 1; i >= 0; i-- {
		od := q.delays[i]

		if od.Etype == delay.Blanket {
			nd.Status = delay.Block
			od.Blocks = append(od.Blocks, nd)
			q.delays = append(q.delays, nd)
			return nd
		}

		if !related(primaryPath(od), primaryPath(nd)) && !movesRelated(od, nd) {
			continue
		}

		switch q.evaluate(od, nd) {
		case nullify:
			od.Etype = delay.None
			q.removeAt(i)
			return nil
		case absorb:
			return nil
		case replace:
			if od.Etype == delay.Move {
				od.Etype = delay.Delete
				od.Path2 = ""
				nd.Status = delay.Wait
				q.delays = append(q.delays, nd)
				return nd
			}
			if od.Path != nd.Path {
				panic("fifo: replace collapse across differing paths")
			}
			od.Etype = nd.Etype
			od.Path2 = nd.Path2
			return nil
		case stack:
			nd.Status = delay.Block
			od.Blocks = append(od.Blocks, nd)
			q.delays = append(q.delays, nd)
			return nd
		case continueScan:
			continue
		}
	}

	nd.Status = delay.Wait
	q.delays = append(q.delays, nd)
	return nd
}

// primaryPath returns the path used to short-circuit the tail-to-head scan
// before falling into full sub-event evaluation.
func primaryPath(d *delay.Delay) string {
	return d.Path
}

// movesRelated reports whether either delay is a Move, in which case the
// cheap primaryPath comparison above isn't sufficient to rule out a match
// (the destination path also needs consideration), so evaluate must run.
func movesRelated(a, b *delay.Delay) bool {
	return a.Etype == delay.Move || b.Etype == delay.Move
}

// removeAt excises the delay at index i and releases anything blocked
// directly on it back to Wait.
func (q *Queue) removeAt(i int) {
	removed := q.delays[i]
	q.delays = append(q.delays[:i], q.delays[i+1:]...)
	for _, blocked := range removed.Blocks {
		blocked.Status = delay.Wait
	}
}

// RemoveDelay excises d by identity, releasing anything blocked directly on
// it back to Wait. It is a no-op if d is not present.
func (q *Queue) RemoveDelay(d *delay.Delay) {
	for i, candidate := range q.delays {
		if candidate == d {
			q.removeAt(i)
			return
		}
	}
}

// Alarm implements get_alarm: if the process table is already full, there is
// nothing to schedule. Otherwise it returns the first Wait delay's alarm,
// front to back.
func (q *Queue) Alarm(runningProcesses, maxProcesses int) (time.Time, bool) {
	if maxProcesses > 0 && runningProcesses >= maxProcesses {
		return time.Time{}, false
	}
	for _, d := range q.delays {
		if d.Status == delay.Wait {
			return d.Alarm, true
		}
	}
	return time.Time{}, false
}

// blockerOf returns the delay that directly blocks d, if any. Invariant 1
// guarantees at most one exists.
func (q *Queue) blockerOf(d *delay.Delay) *delay.Delay {
	for _, candidate := range q.delays {
		for _, blocked := range candidate.Blocks {
			if blocked == d {
				return candidate
			}
		}
	}
	return nil
}

// GetDelays implements get_delays: the sub-sequence of queued delays that
// are not Active, satisfy predicate (if given), and are not transitively
// blocked by any delay that is itself Active or predicate-rejected.
func (q *Queue) GetDelays(predicate func(*delay.Delay) bool) []*delay.Delay {
	rejected := make(map[*delay.Delay]bool)
	var isRejected func(*delay.Delay) bool
	isRejected = func(d *delay.Delay) bool {
		if v, ok := rejected[d]; ok {
			return v
		}
		rejected[d] = false // break cycles defensively; the FIFO is acyclic by construction
		bad := d.Status == delay.Active || (predicate != nil && !predicate(d))
		if !bad {
			if blocker := q.blockerOf(d); blocker != nil {
				bad = isRejected(blocker)
			}
		}
		rejected[d] = bad
		return bad
	}

	var out []*delay.Delay
	for _, d := range q.delays {
		if d.Status == delay.Active {
			continue
		}
		if predicate != nil && !predicate(d) {
			continue
		}
		if blocker := q.blockerOf(d); blocker != nil && isRejected(blocker) {
			continue
		}
		out = append(out, d)
	}
	return out
}
