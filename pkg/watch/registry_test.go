package watch

import (
	"testing"
	"time"

	"github.com/axkibe/lsyncd-go/pkg/delay"
	"github.com/axkibe/lsyncd-go/pkg/inlet"
	syncpkg "github.com/axkibe/lsyncd-go/pkg/sync"
)

// fakeSource is a minimal in-memory KernelSource for exercising the
// registry without touching the real kernel.
type fakeSource struct {
	nextWd  int
	dirs    map[string]map[string]bool
	watched map[int]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		dirs:    make(map[string]map[string]bool),
		watched: make(map[int]string),
	}
}

func (f *fakeSource) AddWatch(path string) (int, error) {
	f.nextWd++
	f.watched[f.nextWd] = path
	return f.nextWd, nil
}

func (f *fakeSource) RemoveWatch(wd int) error {
	delete(f.watched, wd)
	return nil
}

func (f *fakeSource) ReadDir(path string) (map[string]bool, error) {
	return f.dirs[path], nil
}

func (f *fakeSource) RealDir(path string) (string, error) { return path, nil }
func (f *fakeSource) Now() time.Time                      { return time.Now() }
func (f *fakeSource) Events() <-chan Event                { return nil }
func (f *fakeSource) Errors() <-chan error                { return nil }
func (f *fakeSource) Close() error                        { return nil }

func mustSync(t *testing.T) *syncpkg.Sync {
	t.Helper()
	s, err := syncpkg.New(syncpkg.Config{
		Name:   "test",
		Source: "/src",
		Target: "/dst",
		Action: func(in *inlet.Inlet) error { return nil },
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAddSyncWatchesRoot(t *testing.T) {
	source := newFakeSource()
	source.dirs["/src"] = map[string]bool{"a": false, "b": true}
	source.dirs["/src/b"] = map[string]bool{}

	registry := NewRegistry(source, 0)

	s := mustSync(t)
	if err := registry.AddSync(s, "/src", true); err != nil {
		t.Fatal(err)
	}

	if len(source.watched) != 2 {
		t.Fatalf("expected root and subdirectory watched, got %d watches", len(source.watched))
	}
}

func TestDispatchDeliversRelativePath(t *testing.T) {
	source := newFakeSource()
	source.dirs["/src"] = map[string]bool{}

	registry := NewRegistry(source, 0)
	s := mustSync(t)
	if err := registry.AddSync(s, "/src", true); err != nil {
		t.Fatal(err)
	}

	registry.dispatch(delay.Modify, 1, "file.txt", false, time.Now())

	delays := s.GetDelays(nil)
	if len(delays) != 1 || delays[0].Path != "file.txt" {
		t.Fatalf("expected one Modify(file.txt) delay, got %v", delays)
	}
}

func TestUnknownWatchDescriptorDropped(t *testing.T) {
	source := newFakeSource()
	registry := NewRegistry(source, 0)
	s := mustSync(t)
	if err := registry.AddSync(s, "/src", true); err != nil {
		t.Fatal(err)
	}

	registry.dispatch(delay.Modify, 999, "ghost", false, time.Now())

	if len(s.GetDelays(nil)) != 0 {
		t.Fatal("expected event on an unknown watch descriptor to be silently dropped")
	}
}

func TestMovePairingDecomposesWithoutOnMove(t *testing.T) {
	source := newFakeSource()
	source.dirs["/src"] = map[string]bool{}

	registry := NewRegistry(source, 0)
	s := mustSync(t)
	if err := registry.AddSync(s, "/src", true); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	overflow := registry.HandleEvent(Event{Kind: RawMovedFrom, Wd: 1, Name: "old", Cookie: 42, Time: now})
	if overflow {
		t.Fatal("unexpected overflow")
	}
	overflow = registry.HandleEvent(Event{Kind: RawMovedTo, Wd: 1, Name: "new", Cookie: 42, Time: now})
	if overflow {
		t.Fatal("unexpected overflow")
	}

	// The test sync has no OnMove callback opt-in, so the paired Move
	// decomposes into a Delete plus a Create at the sync layer.
	delays := s.GetDelays(nil)
	if len(delays) != 2 {
		t.Fatalf("expected the paired Move to decompose into two delays, got %d", len(delays))
	}
	if delays[0].Etype != delay.Delete || delays[0].Path != "old" {
		t.Fatalf("expected Delete(old) first, got %v(%s)", delays[0].Etype, delays[0].Path)
	}
	if delays[1].Etype != delay.Create || delays[1].Path != "new" {
		t.Fatalf("expected Create(new) second, got %v(%s)", delays[1].Etype, delays[1].Path)
	}
}

func TestDispatchCreateRaisesDelaysForPreexistingChildren(t *testing.T) {
	source := newFakeSource()
	source.dirs["/src"] = map[string]bool{}
	source.dirs["/src/newdir/"] = map[string]bool{"file.txt": false}

	registry := NewRegistry(source, 0)
	s := mustSync(t)
	if err := registry.AddSync(s, "/src", true); err != nil {
		t.Fatal(err)
	}

	// A directory that already has content appears in one Create event (e.g.
	// mv externally-populated-dir/ src/newdir), so add_watch must recurse and
	// raise synthetic Create delays for what's already inside it, not just
	// install a bare watch on the new directory.
	registry.dispatch(delay.Create, 1, "newdir", true, time.Now())

	delays := s.GetDelays(nil)
	if len(delays) != 2 {
		t.Fatalf("expected the directory and its preexisting child to both be delayed, got %v", delays)
	}
	if delays[0].Etype != delay.Create || delays[0].Path != "newdir/" {
		t.Fatalf("expected Create(newdir/) first, got %v(%s)", delays[0].Etype, delays[0].Path)
	}
	if delays[1].Etype != delay.Create || delays[1].Path != "newdir/file.txt" {
		t.Fatalf("expected Create(newdir/file.txt) for the preexisting child, got %v(%s)", delays[1].Etype, delays[1].Path)
	}
}

func TestReapConvertsStaleMovedFromToDelete(t *testing.T) {
	source := newFakeSource()
	source.dirs["/src"] = map[string]bool{}

	registry := NewRegistry(source, 0)
	s := mustSync(t)
	if err := registry.AddSync(s, "/src", true); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	registry.HandleEvent(Event{Kind: RawMovedFrom, Wd: 1, Name: "gone", Cookie: 7, Time: now})
	registry.Reap(now.Add(time.Hour), time.Second)

	delays := s.GetDelays(nil)
	if len(delays) != 1 || delays[0].Etype != delay.Delete || delays[0].Path != "gone" {
		t.Fatalf("expected the stale move to reap into Delete(gone), got %v", delays)
	}
}
