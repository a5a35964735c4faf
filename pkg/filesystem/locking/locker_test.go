package locking

import (
	"os"
	"os/exec"
	"strings"
	"testing"
)

// TestLockerFailOnDirectory tests that a locker creation fails for a directory.
func TestLockerFailOnDirectory(t *testing.T) {
	if _, err := NewLocker(t.TempDir(), 0600); err == nil {
		t.Fatal("creating a locker on a directory path succeeded")
	}
}

// TestLockerCycle tests the lifecycle of a Locker.
func TestLockerCycle(t *testing.T) {
	// Create a temporary file and defer its removal.
	lockfile, err := os.CreateTemp("", "lsyncd_pidfile_lock")
	if err != nil {
		t.Fatal("unable to create temporary lock file:", err)
	} else if err = lockfile.Close(); err != nil {
		t.Error("unable to close temporary lock file:", err)
	}
	defer os.Remove(lockfile.Name())

	// Create a locker.
	locker, err := NewLocker(lockfile.Name(), 0600)
	if err != nil {
		t.Fatal("unable to create locker:", err)
	}

	// Attempt to acquire the lock.
	if err := locker.Lock(true); err != nil {
		t.Fatal("unable to acquire lock:", err)
	}

	// Verify that the lock state is correct.
	if !locker.Held() {
		t.Error("lock incorrectly reported as unlocked")
	}

	// Attempt to release the lock.
	if err := locker.Unlock(); err != nil {
		t.Fatal("unable to release lock:", err)
	}

	// Attempt to close the locker.
	if err := locker.Close(); err != nil {
		t.Fatal("unable to close locker:", err)
	}
}

// TestLockDuplicateFail tests that a second process fails to acquire the lock
// on the same file while this process still holds it. POSIX fcntl locks are
// owned per process, so the second attempt runs in the lockertest helper.
func TestLockDuplicateFail(t *testing.T) {
	lockfile, err := os.CreateTemp("", "lsyncd_filesystem_lock")
	if err != nil {
		t.Fatal("unable to create temporary lock file:", err)
	} else if err = lockfile.Close(); err != nil {
		t.Error("unable to close temporary lock file:", err)
	}
	defer os.Remove(lockfile.Name())

	first, err := NewLocker(lockfile.Name(), 0600)
	if err != nil {
		t.Fatal("unable to create locker:", err)
	} else if err = first.Lock(true); err != nil {
		t.Fatal("unable to acquire lock:", err)
	}
	defer func() {
		first.Unlock()
		first.Close()
	}()

	second := exec.Command("go", "run", "./lockertest", lockfile.Name())
	output, err := second.CombinedOutput()
	if err == nil {
		t.Fatal("second process acquired an already-held lock")
	}

	if !strings.Contains(string(output), "lock acquisition failed") {
		t.Error("second process did not fail at lock acquisition:", string(output))
	}
}
