package action

import (
	"testing"

	"github.com/axkibe/lsyncd-go/pkg/sync"
)

func TestDefaultCollectRetriesPartialTransfer(t *testing.T) {
	if got := DefaultCollect(sync.Agent{}, rsyncPartialTransferExitCode); got != sync.Again {
		t.Fatalf("expected exit code %d to retry, got %v", rsyncPartialTransferExitCode, got)
	}
}

func TestDefaultCollectResolvesOtherwise(t *testing.T) {
	if got := DefaultCollect(sync.Agent{}, 0); got != sync.Done {
		t.Fatalf("expected a clean exit to resolve, got %v", got)
	}
	if got := DefaultCollect(sync.Agent{}, 23); got != sync.Done {
		t.Fatalf("expected a non-retryable failure to resolve, got %v", got)
	}
}
