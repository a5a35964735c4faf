package lsyncd

import "os"

// DebugEnabled controls whether debug-level logging is enabled. It is set
// at init time from the LSYNCD_DEBUG environment variable ("1" enables it);
// the -log flag's categories do not affect it.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("LSYNCD_DEBUG") == "1"
}
