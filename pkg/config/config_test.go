package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/axkibe/lsyncd-go/pkg/action"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lsyncd.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal("unable to write temporary configuration file:", err)
	}
	return path
}

func TestLoadRequiresAtLeastOneSync(t *testing.T) {
	path := writeTemp(t, "")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a configuration file with no syncs")
	}
}

func TestLoadParsesLocalRsyncSync(t *testing.T) {
	path := writeTemp(t, `
[[sync]]
source = "/srv/www"
target = "/backup/www"
delay = 5
`)
	file, err := Load(path)
	if err != nil {
		t.Fatal("unable to load configuration:", err)
	}

	configs, err := file.Configs()
	if err != nil {
		t.Fatal("unable to convert configuration:", err)
	}
	if len(configs) != 1 {
		t.Fatalf("expected 1 sync, got %d", len(configs))
	}

	c := configs[0]
	if c.Source != "/srv/www" || c.Target != "/backup/www" {
		t.Errorf("unexpected source/target: %+v", c)
	}
	if c.Delay != 5*time.Second {
		t.Errorf("expected a 5 second delay, got %v", c.Delay)
	}
	if c.Action == nil {
		t.Error("expected a resolved action")
	}
}

func TestLoadDefaultsActionToRsyncSSHForRemoteTarget(t *testing.T) {
	path := writeTemp(t, `
[[sync]]
source = "/srv/www"
target = "backup@example.com:/backup/www"
`)
	file, err := Load(path)
	if err != nil {
		t.Fatal("unable to load configuration:", err)
	}
	configs, err := file.Configs()
	if err != nil {
		t.Fatal("unable to convert configuration:", err)
	}
	if configs[0].Delay != DefaultDelay {
		t.Errorf("expected the default delay, got %v", configs[0].Delay)
	}
	if reflect.ValueOf(configs[0].Action).Pointer() != reflect.ValueOf(action.RsyncSSH).Pointer() {
		t.Error("expected a remote target to default to the rsyncssh action")
	}
}

func TestLoadRejectsUnknownAction(t *testing.T) {
	path := writeTemp(t, `
[[sync]]
source = "/srv/www"
target = "/backup/www"
action = "bogus"
`)
	file, err := Load(path)
	if err != nil {
		t.Fatal("unable to load configuration:", err)
	}
	if _, err := file.Configs(); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}

func TestLoadMissingSourceRejected(t *testing.T) {
	path := writeTemp(t, `
[[sync]]
target = "/backup/www"
`)
	file, err := Load(path)
	if err != nil {
		t.Fatal("unable to load configuration:", err)
	}
	if _, err := file.Configs(); err == nil {
		t.Fatal("expected an error for a missing source")
	}
}

func TestStatusIntervalDefaultsWhenUnset(t *testing.T) {
	var f File
	if got := f.StatusInterval(); got != DefaultStatusInterval {
		t.Errorf("expected default status interval, got %v", got)
	}
}

func TestIsRemoteTarget(t *testing.T) {
	cases := map[string]bool{
		"/local/path":     false,
		"relative/path":   false,
		"host:/path":      true,
		"user@host:/path": true,
	}
	for target, want := range cases {
		if got := isRemoteTarget(target); got != want {
			t.Errorf("isRemoteTarget(%q) = %v, want %v", target, got, want)
		}
	}
}
