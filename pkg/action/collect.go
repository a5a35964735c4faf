package action

import (
	"github.com/axkibe/lsyncd-go/pkg/sync"
)

// rsyncPartialTransferExitCode is rsync's exit code for "some files could
// not be transferred", which commonly happens when a file that triggered
// the sync disappears again before rsync gets to it. It's the canonical
// transient failure worth retrying rather than giving up on.
const rsyncPartialTransferExitCode = 5

// DefaultCollect is the Collect callback paired with Rsync and RsyncSSH: a
// clean exit resolves the delay(s), a partial-transfer exit retries, and
// anything else still resolves the delay(s) rather than blocking the FIFO
// on a change rsync will never be able to apply.
func DefaultCollect(agent sync.Agent, exitCode int) sync.CollectResult {
	if exitCode == rsyncPartialTransferExitCode {
		return sync.Again
	}
	return sync.Done
}
