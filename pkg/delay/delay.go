// Package delay defines the Delay value type: one pending filesystem change
// awaiting action inside a sync's FIFO.
package delay

import "time"

// Etype identifies the kind of filesystem change a Delay represents.
type Etype int

const (
	// None marks a delay that has been nullified by collapse and must be
	// dropped from its FIFO.
	None Etype = iota
	// Attrib indicates a metadata-only change.
	Attrib
	// Create indicates a new file or directory.
	Create
	// Modify indicates a content change to an existing file.
	Modify
	// Delete indicates a removed file or directory.
	Delete
	// Move indicates a rename; Path is the origin and Path2 the destination.
	Move
	// Blanket represents a full recursive reconciliation. It blocks, and is
	// blocked by, everything.
	Blanket
)

// String renders the etype the way log lines and the status file expect.
func (e Etype) String() string {
	switch e {
	case None:
		return "None"
	case Attrib:
		return "Attrib"
	case Create:
		return "Create"
	case Modify:
		return "Modify"
	case Delete:
		return "Delete"
	case Move:
		return "Move"
	case Blanket:
		return "Blanket"
	default:
		return "Unknown"
	}
}

// Status describes where a Delay sits in its sync's lifecycle.
type Status int

const (
	// Wait means the delay is sitting in the FIFO, eligible to run once its
	// alarm elapses and it isn't blocked.
	Wait Status = iota
	// Active means the delay has a running process registered against it.
	Active
	// Block means some other delay's completion or removal is required
	// before this one becomes runnable.
	Block
	// Done means the delay has been fully processed and is no longer in any
	// FIFO. Delay values are not reused once Done; a fresh Delay is created
	// for the next event on the same path.
	Done
)

// String renders the status the way the status file expects.
func (s Status) String() string {
	switch s {
	case Wait:
		return "wait"
	case Active:
		return "active"
	case Block:
		return "block"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Immediate is the sentinel alarm value used for Blanket delays, which should
// be eligible to run as soon as the scheduler looks at them, regardless of
// the configured delay interval. Delays inserted while a FIFO is saturated
// keep their ordinary alarm; saturation relaxes the alarm gate instead (see
// pkg/sync).
var Immediate = time.Time{}

// Delay is one pending filesystem change. Its zero value is not meaningful;
// construct instances with New.
type Delay struct {
	// Etype is the kind of change.
	Etype Etype
	// Alarm is the monotonic deadline at which this delay becomes eligible
	// to run, or the Immediate sentinel.
	Alarm time.Time
	// Path is the sync-root-relative path. Directories carry a trailing
	// slash; files do not.
	Path string
	// Path2 is set iff Etype == Move, and holds the destination path.
	Path2 string
	// Status is the delay's current lifecycle state.
	Status Status
	// Blocks holds the delays that are waiting on this one, in the order
	// they were stacked. Invariant: each delay appears in at most one
	// other delay's Blocks slice at a time.
	Blocks []*Delay
}

// New constructs a Delay in the Wait state with the given alarm.
func New(etype Etype, alarm time.Time, path, path2 string) *Delay {
	return &Delay{
		Etype:  etype,
		Alarm:  alarm,
		Path:   path,
		Path2:  path2,
		Status: Wait,
	}
}

// IsDir reports whether the delay's primary path names a directory, per the
// trailing-slash convention.
func (d *Delay) IsDir() bool {
	return len(d.Path) > 0 && d.Path[len(d.Path)-1] == '/'
}
