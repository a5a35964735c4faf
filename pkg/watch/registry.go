package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"

	"github.com/axkibe/lsyncd-go/pkg/delay"
	"github.com/axkibe/lsyncd-go/pkg/logging"
	"github.com/axkibe/lsyncd-go/pkg/sync"
)

// defaultMaximumWatches bounds how many watches the registry will keep
// installed at once, evicting the least-recently-touched directory first.
// It guards against exhausting a host's fs.inotify.max_user_watches limit
// on very large trees; raising it is a host tuning knob, not a code change.
const defaultMaximumWatches = 65536

type syncBinding struct {
	sync         *sync.Sync
	root         string
	trackSubdirs bool
}

type pendingMove struct {
	wd    int
	name  string
	isDir bool
	time  time.Time
}

// Registry is the bidirectional watch-descriptor/path map plus the
// sync-root bindings that let a raw kernel event be translated into
// per-sync relative delays.
type Registry struct {
	source KernelSource
	logger *logging.Logger

	wdToPath map[int]string
	pathToWd map[string]int
	evictor  *lru.Cache

	syncs []*syncBinding

	// pending buffers a RawMovedFrom until its matching RawMovedTo arrives
	// (or Reap gives up on it), keyed by the kernel-assigned move cookie.
	pending map[uint32]*pendingMove
}

// NewRegistry constructs a Registry over source. maxWatches caps the number
// of live watches; zero or negative selects defaultMaximumWatches.
func NewRegistry(source KernelSource, maxWatches int) *Registry {
	if maxWatches <= 0 {
		maxWatches = defaultMaximumWatches
	}

	r := &Registry{
		source:   source,
		logger:   logging.RootLogger.Sublogger("watch"),
		wdToPath: make(map[int]string),
		pathToWd: make(map[string]int),
		pending:  make(map[uint32]*pendingMove),
	}

	r.evictor = lru.New(maxWatches)
	r.evictor.OnEvicted = func(key lru.Key, _ interface{}) {
		path, ok := key.(string)
		if !ok {
			panic("watch: invalid key type in watch eviction cache")
		}
		r.removeWatchInternal(path, true)
	}

	return r
}

// AddWatch implements add_watch: install a watch on path, evict any stale
// binding the kernel handed back a recycled descriptor for, and optionally
// recurse into path's children, raising synthetic Create events into
// raiseSync (if non-nil) for every child of a directory that has just
// appeared.
func (r *Registry) AddWatch(path string, recurse bool, raiseSync *sync.Sync, raiseTime time.Time) {
	wd, err := r.source.AddWatch(path)
	if err != nil {
		r.logger.Warn(errors.Wrapf(err, "unable to watch %s", path))
		return
	}

	if existing, ok := r.wdToPath[wd]; ok && existing != path {
		delete(r.pathToWd, existing)
	}
	r.wdToPath[wd] = path
	r.pathToWd[path] = wd
	r.evictor.Add(path, wd)

	if !recurse && raiseSync == nil {
		return
	}

	children, err := r.source.ReadDir(path)
	if err != nil {
		r.logger.Warn(errors.Wrapf(err, "unable to enumerate %s", path))
		return
	}

	for name, isDir := range children {
		childPath := joinDir(path, name, isDir)
		if isDir && recurse {
			r.AddWatch(childPath, true, raiseSync, raiseTime)
		}
		if raiseSync != nil {
			if rel, inside := relativeToRoot(rootOf(raiseSync, r.syncs), childPath); inside {
				raiseSync.Delay(delay.Create, raiseTime, rel, "")
			}
		}
	}
}

func rootOf(s *sync.Sync, bindings []*syncBinding) string {
	for _, b := range bindings {
		if b.sync == s {
			return b.root
		}
	}
	return ""
}

// RemoveWatch implements remove_watch: forget path, optionally telling the
// kernel to drop the underlying watch (askKernel is false when the
// directory is being "moved", i.e. its watch will be re-homed rather than
// destroyed).
func (r *Registry) RemoveWatch(path string, askKernel bool) {
	r.removeWatchInternal(path, askKernel)
	r.evictor.Remove(path)
}

func (r *Registry) removeWatchInternal(path string, askKernel bool) {
	wd, ok := r.pathToWd[path]
	if !ok {
		return
	}
	if askKernel {
		if err := r.source.RemoveWatch(wd); err != nil {
			r.logger.Warn(errors.Wrapf(err, "unable to remove watch on %s", path))
		}
	}
	delete(r.pathToWd, path)
	delete(r.wdToPath, wd)
}

// AddSync implements add_sync: binds root to sync and installs a recursive
// watch without raising events, since the sync's own startup Blanket delay
// is responsible for the initial reconciliation.
func (r *Registry) AddSync(s *sync.Sync, root string, trackSubdirs bool) error {
	real, err := r.source.RealDir(root)
	if err != nil {
		return errors.Wrapf(err, "unable to resolve source directory %s", root)
	}
	real = strings.TrimSuffix(real, "/")

	r.syncs = append(r.syncs, &syncBinding{sync: s, root: real, trackSubdirs: trackSubdirs})
	r.AddWatch(real, true, nil, time.Time{})
	return nil
}

// HandleEvent implements the event dispatcher for a single raw kernel
// event. It returns true if the kernel reported a queue overflow, in which
// case the caller (the main loop) enters fade.
func (r *Registry) HandleEvent(ev Event) (overflow bool) {
	switch ev.Kind {
	case RawOverflow:
		return true
	case RawIgnored:
		r.forgetWd(ev.Wd)
	case RawDeleteSelf, RawMoveSelf:
		if path, ok := r.wdToPath[ev.Wd]; ok {
			r.RemoveWatch(path, false)
		}
	case RawMovedFrom:
		r.pending[ev.Cookie] = &pendingMove{wd: ev.Wd, name: ev.Name, isDir: ev.IsDir, time: ev.Time}
	case RawMovedTo:
		if from, ok := r.pending[ev.Cookie]; ok {
			delete(r.pending, ev.Cookie)
			r.dispatchMove(from.wd, from.name, ev.Wd, ev.Name, ev.IsDir, ev.Time)
		} else {
			r.dispatch(delay.Create, ev.Wd, ev.Name, ev.IsDir, ev.Time)
		}
	default:
		if etype, ok := etypeFor(ev.Kind); ok {
			r.dispatch(etype, ev.Wd, ev.Name, ev.IsDir, ev.Time)
		}
	}
	return false
}

// Reap converts any RawMovedFrom that has waited longer than maxAge without
// a matching RawMovedTo into a plain Delete; this covers a move whose
// destination lies outside any watched tree, which never produces a
// MovedTo the kernel delivers to us.
func (r *Registry) Reap(now time.Time, maxAge time.Duration) {
	for cookie, p := range r.pending {
		if now.Sub(p.time) > maxAge {
			delete(r.pending, cookie)
			r.dispatch(delay.Delete, p.wd, p.name, p.isDir, p.time)
		}
	}
}

func (r *Registry) forgetWd(wd int) {
	if path, ok := r.wdToPath[wd]; ok {
		delete(r.wdToPath, wd)
		delete(r.pathToWd, path)
		r.evictor.Remove(path)
	}
}

func etypeFor(kind RawKind) (delay.Etype, bool) {
	switch kind {
	case RawAttrib:
		return delay.Attrib, true
	case RawModify:
		return delay.Modify, true
	case RawCreate:
		return delay.Create, true
	case RawDelete:
		return delay.Delete, true
	default:
		return delay.None, false
	}
}

// dispatch resolves wd+name to an absolute path and delivers etype to every
// sync whose root covers it, maintaining subtree watches along the way.
func (r *Registry) dispatch(etype delay.Etype, wd int, name string, isDir bool, t time.Time) {
	dirPath, ok := r.wdToPath[wd]
	if !ok {
		// Expected race after a watched subdirectory was already removed.
		return
	}
	absPath := joinDir(dirPath, name, isDir)

	for _, binding := range r.syncs {
		rel, inside := relativeToRoot(binding.root, absPath)
		if !inside {
			continue
		}
		binding.sync.Delay(etype, t, rel, "")
		r.trackSubtree(binding, etype, absPath, isDir, t)
	}
}

// dispatchMove resolves both halves of a paired move and delivers a single
// Move, or a Create/Delete if only one side falls within a sync's root.
func (r *Registry) dispatchMove(fromWd int, fromName string, toWd int, toName string, isDir bool, t time.Time) {
	fromDir, fromOk := r.wdToPath[fromWd]
	toDir, toOk := r.wdToPath[toWd]
	if !fromOk && !toOk {
		return
	}
	if !fromOk {
		r.dispatch(delay.Create, toWd, toName, isDir, t)
		return
	}
	if !toOk {
		r.dispatch(delay.Delete, fromWd, fromName, isDir, t)
		return
	}

	absFrom := joinDir(fromDir, fromName, isDir)
	absTo := joinDir(toDir, toName, isDir)

	for _, binding := range r.syncs {
		relFrom, fromInside := relativeToRoot(binding.root, absFrom)
		relTo, toInside := relativeToRoot(binding.root, absTo)

		switch {
		case fromInside && toInside:
			binding.sync.Delay(delay.Move, t, relFrom, relTo)
		case toInside:
			binding.sync.Delay(delay.Create, t, relTo, "")
		case fromInside:
			binding.sync.Delay(delay.Delete, t, relFrom, "")
		default:
			continue
		}

		if !isDir || !binding.trackSubdirs {
			continue
		}
		switch {
		case fromInside && toInside:
			r.RemoveWatch(absFrom, false)
			r.AddWatch(absTo, true, binding.sync, t)
		case toInside:
			r.AddWatch(absTo, true, binding.sync, t)
		case fromInside:
			r.RemoveWatch(absFrom, true)
		}
	}
}

func (r *Registry) trackSubtree(binding *syncBinding, etype delay.Etype, absPath string, isDir bool, t time.Time) {
	if !isDir || !binding.trackSubdirs {
		return
	}
	switch etype {
	case delay.Create:
		r.AddWatch(absPath, true, binding.sync, t)
	case delay.Delete:
		r.RemoveWatch(absPath, true)
	}
}

// StatusLines renders the watch registry the way the status file expects:
// one "<wd>: <path>" line per live watch.
func (r *Registry) StatusLines() []string {
	lines := make([]string, 0, len(r.wdToPath))
	for wd, path := range r.wdToPath {
		lines = append(lines, fmt.Sprintf("%d: %s", wd, path))
	}
	return lines
}

func joinDir(dir, name string, isDir bool) string {
	p := dir
	if name != "" {
		p = filepath.Join(dir, name)
	}
	if isDir && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func relativeToRoot(root, absPath string) (string, bool) {
	trimmed := strings.TrimSuffix(absPath, "/")
	if trimmed == root {
		return "", true
	}
	prefix := root + "/"
	if !strings.HasPrefix(absPath, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(absPath, prefix)
	return rel, true
}
