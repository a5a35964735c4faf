// Package locking implements the daemon's pidfile locking: an advisory,
// exclusive file lock used to guarantee that at most one lsyncd-go instance
// runs against a given pidfile path at a time.
package locking

import (
	"os"

	"github.com/pkg/errors"

	"github.com/axkibe/lsyncd-go/pkg/logging"
)

var lockerLogger = logging.RootLogger.Sublogger("locking")

// Locker holds the advisory lock on a pidfile. lsyncd-go's own -pidfile flag
// is the only production caller (see cmd/lsyncd/main.go), but it's kept
// generic over any path since nothing about the lock itself is pidfile-
// specific beyond the error messages.
type Locker struct {
	// path is the pidfile path this locker was opened against, kept around
	// for error context and log lines rather than surfaced to callers.
	path string
	// file is the underlying file object that's locked.
	file *os.File
	// held indicates whether or not the lock is currently held.
	held bool
}

// NewLocker attempts to create a lock with the file at the specified path,
// creating the file if necessary. The lock is returned in an unlocked state.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE | os.O_APPEND
	file, err := os.OpenFile(path, mode, permissions)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open pidfile %s", path)
	}
	return &Locker{path: path, file: file}, nil
}

// Held returns whether or not the lock is currently held.
func (l *Locker) Held() bool {
	return l.held
}

// Lock acquires the advisory lock, blocking if requested and not already
// available. A failed non-blocking attempt almost always means another
// lsyncd-go instance is running against the same pidfile, so the error is
// wrapped with that in mind rather than left as a bare syscall error.
func (l *Locker) Lock(block bool) error {
	if err := l.lockPlatform(block); err != nil {
		return errors.Wrapf(err, "unable to lock pidfile %s (is another instance running?)", l.path)
	}
	l.held = true
	lockerLogger.Debugf("acquired pidfile lock on %s", l.path)
	return nil
}

// Unlock releases the advisory lock.
func (l *Locker) Unlock() error {
	if err := l.unlockPlatform(); err != nil {
		return errors.Wrapf(err, "unable to unlock pidfile %s", l.path)
	}
	l.held = false
	lockerLogger.Debugf("released pidfile lock on %s", l.path)
	return nil
}

// Read implements io.Reader.Read on the underlying file, but errors if the lock
// is not currently held.
func (l *Locker) Read(buffer []byte) (int, error) {
	// Verify that the lock is held.
	if !l.held {
		return 0, errors.New("lock not held")
	}

	// Perform the read.
	return l.file.Read(buffer)
}

// Write implements io.Writer.Write on the underlying file, but errors if the
// lock is not currently held.
func (l *Locker) Write(buffer []byte) (int, error) {
	// Verify that the lock is held.
	if !l.held {
		return 0, errors.New("lock not held")
	}

	// Perform the write.
	return l.file.Write(buffer)
}

// Truncate implements file truncation for the underlying file, but errors if
// the lock is not currently held.
func (l *Locker) Truncate(size int64) error {
	// Verify that the lock is held.
	if !l.held {
		return errors.New("lock not held")
	}

	// Perform the truncation.
	return l.file.Truncate(size)
}

// Close closes the file underlying the locker. This will release any lock held
// on the file and disable future locking. On POSIX platforms, this also
// releases other locks held on the same file.
func (l *Locker) Close() error {
	lockerLogger.Debugf("closing pidfile %s", l.path)
	return l.file.Close()
}
