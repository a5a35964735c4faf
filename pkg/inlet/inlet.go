// Package inlet implements the narrow, read-only view of one delay (or a
// batch of delays) that is handed to user action callbacks. It is
// deliberately decoupled from pkg/sync via the Sync interface below so that
// the two packages don't import each other.
package inlet

import (
	"os/exec"
	"path"
	"strings"

	"github.com/axkibe/lsyncd-go/pkg/delay"
)

// Sync is the subset of a sync's behavior an Inlet needs in order to let a
// user callback act on the event(s) it's viewing.
type Sync interface {
	// SourcePath returns the sync's absolute source root, without a
	// trailing slash.
	SourcePath() string
	// TargetSpec returns the sync's target specification (a local path or
	// a user@host:path style remote spec) as configured.
	TargetSpec() string
	// SpawnProcess starts cmd and returns its pid, wiring its completion
	// into the sync's process-reaping machinery.
	SpawnProcess(cmd *exec.Cmd) (int, error)
	// RegisterProcess associates pid with a single delay, transitioning it
	// to Active.
	RegisterProcess(pid int, d *delay.Delay)
	// RegisterProcessBatch associates pid with a batch of delays,
	// transitioning all of them to Active.
	RegisterProcessBatch(pid int, ds []*delay.Delay)
	// Discard removes d from the FIFO without spawning anything for it. It
	// is only valid while d.Status == delay.Wait.
	Discard(d *delay.Delay) error
	// AddBlanketDelay appends a Blanket delay to the FIFO.
	AddBlanketDelay() *delay.Delay
	// AddExclude compiles and adds pattern to the sync's exclude set.
	AddExclude(pattern string) error
	// RemoveExclude removes pattern from the sync's exclude set.
	RemoveExclude(pattern string)
}

// Move identifies which half of a Move delay an Inlet is presenting.
type Move int

const (
	// MoveNone means the underlying delay isn't a Move.
	MoveNone Move = iota
	// MoveFr means the Inlet is presenting the origin half of a Move.
	MoveFr
	// MoveTo means the Inlet is presenting the destination half of a Move.
	MoveTo
)

// String renders the move discriminant the way status output expects: empty,
// "Fr", or "To".
func (m Move) String() string {
	switch m {
	case MoveFr:
		return "Fr"
	case MoveTo:
		return "To"
	default:
		return ""
	}
}

// Inlet is the view a user callback receives of one delay, or of a batch of
// delays extracted together via get_delays. Fields are populated once at
// construction and never mutate; callers must not retain an Inlet past the
// callback invocation it was created for; the underlying delay may be
// removed from its FIFO immediately after the callback returns.
type Inlet struct {
	Etype  delay.Etype
	Path   string
	Path2  string
	Status delay.Status
	Move   Move

	Name           string
	Basename       string
	Pathdir        string
	Pathname       string
	Source         string
	SourcePath     string
	SourcePathname string
	Target         string
	TargetPath     string
	TargetPathname string
	IsDir          bool
	IsList         bool

	sync   Sync
	single *delay.Delay
	batch  []*delay.Delay
}

func splitBasename(p string) (dir, name string) {
	trimmed := strings.TrimSuffix(p, "/")
	dir, name = path.Split(trimmed)
	if p != trimmed {
		name += "/"
	}
	return dir, name
}

// New constructs an Inlet presenting a single delay.
func New(sync Sync, d *delay.Delay) *Inlet {
	in := &Inlet{
		Etype:  d.Etype,
		Path:   d.Path,
		Path2:  d.Path2,
		Status: d.Status,
		IsDir:  d.IsDir(),

		Source: sync.SourcePath(),
		Target: sync.TargetSpec(),

		sync:   sync,
		single: d,
	}

	if d.Etype == delay.Move {
		in.Move = MoveFr
	}

	dir, name := splitBasename(d.Path)
	in.Pathdir = dir
	in.Name = name
	in.Basename = strings.TrimSuffix(name, "/")
	in.Pathname = strings.TrimSuffix(d.Path, "/")

	in.SourcePath = joinSlash(sync.SourcePath(), d.Path)
	in.SourcePathname = strings.TrimSuffix(in.SourcePath, "/")
	in.TargetPath = joinSlash(sync.TargetSpec(), d.Path)
	in.TargetPathname = strings.TrimSuffix(in.TargetPath, "/")

	return in
}

// NewBatch constructs an Inlet presenting a batch of delays extracted
// together, e.g. via get_delays. Per-delay fields (Path, Etype, ...) are
// left zero; callers use GetPaths to enumerate the batch.
func NewBatch(sync Sync, ds []*delay.Delay) *Inlet {
	return &Inlet{
		IsList: true,
		Source: sync.SourcePath(),
		Target: sync.TargetSpec(),
		sync:   sync,
		batch:  ds,
	}
}

func joinSlash(root, relative string) string {
	if relative == "" {
		return root
	}
	trailing := strings.HasSuffix(relative, "/")
	joined := path.Join(root, relative)
	if trailing {
		joined += "/"
	}
	return joined
}

// PathPair is one (etype, path, path2) entry returned by GetPaths.
type PathPair struct {
	Etype delay.Etype
	Path  string
	Path2 string
}

// GetPaths flattens the batch into path triples, in FIFO order. If mutator
// is non-nil, it is applied to each triple before it's collected, allowing a
// callback to rewrite paths (e.g. to make them absolute) without touching
// the underlying delays.
func (in *Inlet) GetPaths(mutator func(etype delay.Etype, path, path2 string) (delay.Etype, string, string)) []PathPair {
	source := in.batch
	if source == nil && in.single != nil {
		source = []*delay.Delay{in.single}
	}

	out := make([]PathPair, 0, len(source))
	for _, d := range source {
		etype, p, p2 := d.Etype, d.Path, d.Path2
		if mutator != nil {
			etype, p, p2 = mutator(etype, p, p2)
		}
		out = append(out, PathPair{Etype: etype, Path: p, Path2: p2})
	}
	return out
}

// Spawn starts cmd and registers it against the delay(s) this Inlet
// presents, transitioning them to Active.
func (in *Inlet) Spawn(cmd *exec.Cmd) (int, error) {
	pid, err := in.sync.SpawnProcess(cmd)
	if err != nil {
		return 0, err
	}
	if in.IsList {
		in.sync.RegisterProcessBatch(pid, in.batch)
	} else {
		in.sync.RegisterProcess(pid, in.single)
	}
	return pid, nil
}

// DiscardEvent drops the delay(s) this Inlet presents from the FIFO without
// spawning anything for them.
func (in *Inlet) DiscardEvent() error {
	source := in.batch
	if source == nil && in.single != nil {
		source = []*delay.Delay{in.single}
	}
	for _, d := range source {
		if err := in.sync.Discard(d); err != nil {
			return err
		}
	}
	return nil
}

// CreateBlanketEvent appends a Blanket delay to the owning sync's FIFO. It's
// used by init callbacks to force a full recursive reconciliation.
func (in *Inlet) CreateBlanketEvent() *delay.Delay {
	return in.sync.AddBlanketDelay()
}

// AddExclude adds pattern to the owning sync's exclude set.
func (in *Inlet) AddExclude(pattern string) error {
	return in.sync.AddExclude(pattern)
}

// RmExclude removes pattern from the owning sync's exclude set.
func (in *Inlet) RmExclude(pattern string) {
	in.sync.RemoveExclude(pattern)
}
