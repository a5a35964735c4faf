package process

import (
	"os/exec"
	"testing"
)

func TestIsPOSIXShellCommandNotFound(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 127")
	if err := cmd.Run(); err == nil {
		t.Fatal("expected exit 127 to report as an error")
	}
	if !IsPOSIXShellCommandNotFound(cmd.ProcessState) {
		t.Error("exit code 127 not classified as command not found")
	}
	if IsPOSIXShellInvalidCommand(cmd.ProcessState) {
		t.Error("exit code 127 incorrectly classified as invalid command")
	}
}

func TestIsPOSIXShellInvalidCommand(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 126")
	if err := cmd.Run(); err == nil {
		t.Fatal("expected exit 126 to report as an error")
	}
	if !IsPOSIXShellInvalidCommand(cmd.ProcessState) {
		t.Error("exit code 126 not classified as invalid command")
	}
	if IsPOSIXShellCommandNotFound(cmd.ProcessState) {
		t.Error("exit code 126 incorrectly classified as command not found")
	}
}

func TestIsPOSIXShellExitCodeOrdinaryFailure(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 1")
	if err := cmd.Run(); err == nil {
		t.Fatal("expected exit 1 to report as an error")
	}
	if IsPOSIXShellCommandNotFound(cmd.ProcessState) || IsPOSIXShellInvalidCommand(cmd.ProcessState) {
		t.Error("an ordinary nonzero exit was misclassified as a shell-level error")
	}
}
