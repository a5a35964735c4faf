package engine

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/axkibe/lsyncd-go/pkg/inlet"
	"github.com/axkibe/lsyncd-go/pkg/sync"
	"github.com/axkibe/lsyncd-go/pkg/watch"
)

// fakeSource is a minimal in-memory watch.KernelSource used to drive the
// engine's main loop without a real kernel underneath it.
type fakeSource struct {
	events chan watch.Event
	errs   chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: make(chan watch.Event),
		errs:   make(chan error),
	}
}

func (f *fakeSource) AddWatch(path string) (int, error)       { return 1, nil }
func (f *fakeSource) RemoveWatch(wd int) error                { return nil }
func (f *fakeSource) ReadDir(path string) (map[string]bool, error) {
	return map[string]bool{}, nil
}
func (f *fakeSource) RealDir(path string) (string, error) { return path, nil }
func (f *fakeSource) Now() time.Time                      { return time.Now() }
func (f *fakeSource) Events() <-chan watch.Event           { return f.events }
func (f *fakeSource) Errors() <-chan error                 { return f.errs }
func (f *fakeSource) Close() error                         { return nil }

func newDiscardingEngine(t *testing.T) (*Engine, *fakeSource) {
	t.Helper()

	source := newFakeSource()
	completions := NewCompletions()

	action := func(in *inlet.Inlet) error {
		return in.DiscardEvent()
	}

	s, err := sync.New(sync.Config{
		Name:   "test",
		Source: "/src",
		Target: "/dst",
		Action: action,
	}, completions)
	if err != nil {
		t.Fatal("unable to construct sync:", err)
	}

	e, err := New(Config{
		Syncs:       []SyncEntry{{Sync: s, Root: "/src", TrackSubdirs: true}},
		Source:      source,
		Completions: completions,
	})
	if err != nil {
		t.Fatal("unable to construct engine:", err)
	}

	return e, source
}

func TestNewRejectsEmptySyncs(t *testing.T) {
	source := newFakeSource()
	if _, err := New(Config{Source: source, Completions: NewCompletions()}); err == nil {
		t.Fatal("expected an error constructing an engine with no syncs")
	}
}

func TestNewRejectsMissingCompletionChannel(t *testing.T) {
	source := newFakeSource()
	s, err := sync.New(sync.Config{
		Source: "/src",
		Target: "/dst",
		Action: func(in *inlet.Inlet) error { return nil },
	}, NewCompletions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{
		Syncs:  []SyncEntry{{Sync: s, Root: "/src"}},
		Source: source,
	}); err == nil {
		t.Fatal("expected an error constructing an engine without a completion channel")
	}
}

func TestRunFadesOnTerminationSignal(t *testing.T) {
	e, _ := newDiscardingEngine(t)

	signals := make(chan os.Signal, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		signals <- syscall.SIGTERM
	}()

	done := make(chan error, 1)
	go func() { done <- e.Run(signals) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned an error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after fading")
	}
}

func TestRunWritesStatusFile(t *testing.T) {
	e, _ := newDiscardingEngine(t)

	statusPath := filepath.Join(t.TempDir(), "status")
	e.statusFile = statusPath
	e.statusInterval = time.Millisecond

	signals := make(chan os.Signal, 1)
	go func() {
		time.Sleep(30 * time.Millisecond)
		signals <- syscall.SIGTERM
	}()

	if err := e.Run(signals); err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}

	data, err := os.ReadFile(statusPath)
	if err != nil {
		t.Fatal("expected a status file to have been written:", err)
	}
	if len(data) == 0 {
		t.Fatal("expected a non-empty status file")
	}
}
