// +build !windows

package cmd

import (
	"os"
	"syscall"
)

// TerminationSignals are those signals which lsyncd-go considers to be
// requesting a graceful shutdown: the engine stops spawning new actions and
// exits once every in-flight child has drained (run -> fade). SIGHUP is
// included alongside SIGINT/SIGTERM because this daemon has no config-reload
// story of its own; HUP just means "fade and let systemd/the supervisor
// restart me", matching lsyncd's own HUP handling.
var TerminationSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGHUP,
}
