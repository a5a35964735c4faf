// Package config loads the TOML sync-set file that describes the daemon's
// configured mirrors, and synthesizes the same shape of configuration from
// the -rsync/-rsyncssh flag forms.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/axkibe/lsyncd-go/pkg/action"
	"github.com/axkibe/lsyncd-go/pkg/exclude"
	"github.com/axkibe/lsyncd-go/pkg/sync"
)

// SyncSpec is a single [[sync]] table in the sync-set file. Delay is given
// in seconds for readability in TOML; zero means "use the default" (see
// DefaultDelaySeconds).
type SyncSpec struct {
	// Name is used for logging and the status file. Defaults to Source if
	// empty.
	Name string `toml:"name"`
	// Source is the absolute path to the tree being watched.
	Source string `toml:"source"`
	// Target is either a local path or a user@host:path remote spec, passed
	// verbatim to the action.
	Target string `toml:"target"`
	// Action selects a built-in action: "rsync" or "rsyncssh". Empty means
	// "rsync" if Target has no ':' host prefix, otherwise "rsyncssh".
	Action string `toml:"action"`
	// DelaySeconds is the settle interval before an event becomes runnable.
	DelaySeconds float64 `toml:"delay"`
	// MaxProcesses caps concurrent children for this sync. Zero is
	// unlimited.
	MaxProcesses int `toml:"maxProcesses"`
	// MaxDelays caps the FIFO's best-effort size before the alarm gate
	// relaxes. Zero is unlimited.
	MaxDelays int `toml:"maxDelays"`
	// OnMove, if true, delivers a paired rename as a single Move delay
	// instead of decomposing it into Delete+Create.
	OnMove bool `toml:"onMove"`
	// Excludes lists exclude patterns, in the same syntax as an exclude
	// file (see pkg/exclude), seeded directly rather than loaded from a
	// separate file.
	Excludes []string `toml:"exclude"`
	// ExcludeFrom names a file of newline-delimited exclude patterns to
	// load in addition to Excludes.
	ExcludeFrom string `toml:"excludeFrom"`
}

// Settings holds sync-set-file-wide defaults and daemon-wide knobs that
// aren't naturally per-sync. They have no command-line counterparts.
type Settings struct {
	// StatusFile, if non-empty, is the path the engine periodically
	// rewrites with a human-readable snapshot (spec.md §6, "Status file").
	StatusFile string `toml:"statusFile"`
	// StatusIntervalSeconds is the minimum interval between status file
	// rewrites.
	StatusIntervalSeconds float64 `toml:"statusInterval"`
}

// File is the top-level shape of the TOML sync-set file.
type File struct {
	Settings Settings   `toml:"settings"`
	Syncs    []SyncSpec `toml:"sync"`
}

// DefaultDelay is used for any SyncSpec that leaves delay unset or at zero.
const DefaultDelay = 15 * time.Second

// DefaultStatusInterval is used when Settings.StatusIntervalSeconds is zero.
const DefaultStatusInterval = 10 * time.Second

// Load reads and parses the sync-set file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read configuration file")
	}

	var file File
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "unable to parse configuration file")
	}
	if len(file.Syncs) == 0 {
		return nil, errors.New("configuration file defines no syncs")
	}

	return &file, nil
}

// StatusInterval returns the configured status file rewrite interval, or
// DefaultStatusInterval if unset.
func (f *File) StatusInterval() time.Duration {
	if f.Settings.StatusIntervalSeconds <= 0 {
		return DefaultStatusInterval
	}
	return time.Duration(f.Settings.StatusIntervalSeconds * float64(time.Second))
}

// Configs converts every SyncSpec in f into a sync.Config, ready to be
// passed to sync.New. It's the boundary between the user-facing
// configuration DSL and the core engine, which spec.md places out of scope
// except for exactly this conversion.
func (f *File) Configs() ([]sync.Config, error) {
	configs := make([]sync.Config, 0, len(f.Syncs))
	for i := range f.Syncs {
		c, err := f.Syncs[i].toSyncConfig()
		if err != nil {
			return nil, errors.Wrapf(err, "sync %d", i)
		}
		configs = append(configs, c)
	}
	return configs, nil
}

func (s *SyncSpec) toSyncConfig() (sync.Config, error) {
	if s.Source == "" {
		return sync.Config{}, errors.New("missing source")
	}
	if s.Target == "" {
		return sync.Config{}, errors.New("missing target")
	}

	name := s.Name
	if name == "" {
		name = s.Source
	}

	delay := DefaultDelay
	if s.DelaySeconds > 0 {
		delay = time.Duration(s.DelaySeconds * float64(time.Second))
	}

	actionFunc, err := resolveAction(s.Action, s.Target)
	if err != nil {
		return sync.Config{}, err
	}

	excludes := append([]string{}, s.Excludes...)
	if s.ExcludeFrom != "" {
		loaded, err := loadExcludeFile(s.ExcludeFrom)
		if err != nil {
			return sync.Config{}, err
		}
		excludes = append(excludes, loaded...)
	}

	return sync.Config{
		Name:         name,
		Source:       s.Source,
		Target:       s.Target,
		Delay:        delay,
		MaxProcesses: s.MaxProcesses,
		MaxDelays:    s.MaxDelays,
		OnMove:       s.OnMove,
		Action:       actionFunc,
		Collect:      action.DefaultCollect,
		Excludes:     excludes,
	}, nil
}

func resolveAction(name, target string) (sync.ActionFunc, error) {
	switch name {
	case "rsync":
		return action.Rsync, nil
	case "rsyncssh", "rsync+ssh":
		return action.RsyncSSH, nil
	case "":
		if isRemoteTarget(target) {
			return action.RsyncSSH, nil
		}
		return action.Rsync, nil
	default:
		return nil, errors.Errorf("unknown action %q", name)
	}
}

// isRemoteTarget reports whether target looks like a user@host:path or
// host:path remote spec rather than a local filesystem path.
func isRemoteTarget(target string) bool {
	for i, r := range target {
		switch r {
		case '/':
			return false
		case ':':
			return i > 0
		}
	}
	return false
}

func loadExcludeFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open exclude file %q", path)
	}
	defer f.Close()

	var set exclude.Set
	if err := set.LoadFile(f); err != nil {
		return nil, errors.Wrapf(err, "unable to load exclude file %q", path)
	}
	return set.Patterns(), nil
}

// RsyncFlagConfig synthesizes a single sync.Config from the -rsync SOURCE
// TARGET flag form.
func RsyncFlagConfig(source, target string) sync.Config {
	return sync.Config{
		Name:    source,
		Source:  source,
		Target:  target,
		Delay:   DefaultDelay,
		Action:  action.Rsync,
		Collect: action.DefaultCollect,
	}
}

// RsyncSSHFlagConfig synthesizes a single sync.Config from the -rsyncssh
// SOURCE HOST TARGETDIR flag form.
func RsyncSSHFlagConfig(source, host, targetDir string) sync.Config {
	return sync.Config{
		Name:    source,
		Source:  source,
		Target:  host + ":" + targetDir,
		Delay:   DefaultDelay,
		Action:  action.RsyncSSH,
		Collect: action.DefaultCollect,
	}
}
