//go:build linux
// +build linux

package watch

import (
	"os"
	"path/filepath"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// watchMask is the set of inotify events every watched directory is
// registered for.
const watchMask = unix.IN_ATTRIB | unix.IN_MODIFY | unix.IN_CLOSE_WRITE |
	unix.IN_CREATE | unix.IN_DELETE | unix.IN_DELETE_SELF |
	unix.IN_MOVE_SELF | unix.IN_MOVED_FROM | unix.IN_MOVED_TO

const inotifyReadBufferSize = 64 * 1024

// InotifySource is the Linux KernelSource, built directly on
// golang.org/x/sys/unix. Unlike a coalescing watcher that only reports
// "something changed at this path", it preserves each event's type and the
// move cookie that pairs a MovedFrom with its MovedTo, since the collapse
// engine needs both.
type InotifySource struct {
	fd     int
	file   *os.File
	events chan Event
	errors chan error
	done   chan struct{}
}

// NewInotifySource opens a new inotify instance.
func NewInotifySource() (*InotifySource, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "inotify_init1 failed")
	}

	s := &InotifySource{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), "inotify"),
		events: make(chan Event, 256),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}

	go s.run()

	return s, nil
}

// AddWatch implements KernelSource.
func (s *InotifySource) AddWatch(path string) (int, error) {
	wd, err := unix.InotifyAddWatch(s.fd, path, watchMask)
	if err != nil {
		return 0, err
	}
	return wd, nil
}

// RemoveWatch implements KernelSource.
func (s *InotifySource) RemoveWatch(wd int) error {
	if _, err := unix.InotifyRmWatch(s.fd, uint32(wd)); err != nil {
		return err
	}
	return nil
}

// ReadDir implements KernelSource.
func (s *InotifySource) ReadDir(path string) (map[string]bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	children := make(map[string]bool, len(entries))
	for _, entry := range entries {
		children[entry.Name()] = entry.IsDir()
	}
	return children, nil
}

// RealDir implements KernelSource.
func (s *InotifySource) RealDir(path string) (string, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// Now implements KernelSource.
func (s *InotifySource) Now() time.Time {
	return time.Now()
}

// Events implements KernelSource.
func (s *InotifySource) Events() <-chan Event {
	return s.events
}

// Errors implements KernelSource.
func (s *InotifySource) Errors() <-chan error {
	return s.errors
}

// Close implements KernelSource.
func (s *InotifySource) Close() error {
	close(s.done)
	return s.file.Close()
}

// run reads raw inotify_event records off the file descriptor and decodes
// them into Events, until the descriptor is closed.
func (s *InotifySource) run() {
	buffer := make([]byte, inotifyReadBufferSize)
	for {
		n, err := s.file.Read(buffer)
		if err != nil {
			select {
			case s.errors <- err:
			case <-s.done:
			}
			close(s.events)
			return
		}

		offset := 0
		for offset+unix.SizeofInotifyEvent <= n {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&buffer[offset]))
			nameLen := int(raw.Len)

			var name string
			if nameLen > 0 {
				nameBytes := buffer[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
				name = string(nameBytes[:cStringLen(nameBytes)])
			}

			if event, ok := translateInotifyEvent(raw, name); ok {
				select {
				case s.events <- event:
				case <-s.done:
					return
				}
			}

			offset += unix.SizeofInotifyEvent + nameLen
		}
	}
}

// cStringLen returns the length of the NUL-terminated string held in b,
// which inotify pads with trailing zero bytes to a 4-byte boundary.
func cStringLen(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

// translateInotifyEvent maps a raw inotify_event onto our RawKind
// vocabulary. It returns ok=false for masks we don't act on (e.g.
// IN_UNMOUNT), which are simply dropped.
func translateInotifyEvent(raw *unix.InotifyEvent, name string) (Event, bool) {
	mask := raw.Mask
	isDir := mask&unix.IN_ISDIR != 0
	now := time.Now()

	base := Event{
		Wd:     int(raw.Wd),
		Name:   name,
		IsDir:  isDir,
		Cookie: raw.Cookie,
		Time:   now,
	}

	switch {
	case mask&unix.IN_Q_OVERFLOW != 0:
		return Event{Kind: RawOverflow, Time: now}, true
	case mask&unix.IN_IGNORED != 0:
		base.Kind = RawIgnored
	case mask&unix.IN_DELETE_SELF != 0:
		base.Kind = RawDeleteSelf
	case mask&unix.IN_MOVE_SELF != 0:
		base.Kind = RawMoveSelf
	case mask&unix.IN_ATTRIB != 0:
		base.Kind = RawAttrib
	case mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE) != 0:
		base.Kind = RawModify
	case mask&unix.IN_CREATE != 0:
		base.Kind = RawCreate
	case mask&unix.IN_DELETE != 0:
		base.Kind = RawDelete
	case mask&unix.IN_MOVED_FROM != 0:
		base.Kind = RawMovedFrom
	case mask&unix.IN_MOVED_TO != 0:
		base.Kind = RawMovedTo
	default:
		return Event{}, false
	}
	return base, true
}
