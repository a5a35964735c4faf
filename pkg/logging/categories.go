package logging

import "sync"

// Category identifies a class of log message that can be independently
// enabled via -log CATEGORY. Component loggers tag their Category calls
// with one of these names (or a sync's own display name, for per-sync
// tracing).
type Category string

const (
	// CategoryExclude covers exclude-pattern compilation and matching.
	CategoryExclude Category = "Exclude"
	// CategoryInotify covers raw kernel event delivery.
	CategoryInotify Category = "Inotify"
	// CategoryDelay covers delay FIFO insertion, collapse, and removal.
	CategoryDelay Category = "Delay"
	// CategoryFile covers watch registry add/remove operations.
	CategoryFile Category = "File"
	// CategoryExec covers spawned child processes and their exit status.
	CategoryExec Category = "Exec"
	// CategoryAll enables every category at once.
	CategoryAll Category = "all"
	// CategoryScarce restricts logging to warnings, errors, and exec
	// results, suppressing the high-volume per-event categories.
	CategoryScarce Category = "scarce"
)

// registry tracks which categories are currently enabled.
var registry = struct {
	sync.Mutex
	enabled map[Category]bool
	all     bool
	scarce  bool
}{enabled: make(map[Category]bool)}

// Enable turns on logging for the named category. It is idempotent.
func Enable(category Category) {
	registry.Lock()
	defer registry.Unlock()
	switch category {
	case CategoryAll:
		registry.all = true
	case CategoryScarce:
		registry.scarce = true
	default:
		registry.enabled[category] = true
	}
}

// Enabled reports whether messages tagged with the given category should be
// printed.
func Enabled(category Category) bool {
	registry.Lock()
	defer registry.Unlock()
	if registry.all {
		return true
	}
	if registry.scarce {
		return category == CategoryExec
	}
	return registry.enabled[category]
}
