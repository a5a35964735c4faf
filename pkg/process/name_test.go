package process

import (
	"testing"
)

func TestExecutableNameWindows(t *testing.T) {
	if name := ExecutableName("rsync", "windows"); name != "rsync.exe" {
		t.Error("executable name incorrect for Windows")
	}
}

func TestExecutableNameLinux(t *testing.T) {
	if name := ExecutableName("rsync", "linux"); name != "rsync" {
		t.Error("executable name incorrect for Linux")
	}
}
