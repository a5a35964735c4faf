package exclude

import (
	"strings"
	"testing"
)

func TestAddIdempotent(t *testing.T) {
	var s Set
	if err := s.Add("*.tmp"); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("*.tmp"); err != nil {
		t.Fatal(err)
	}
	if len(s.Patterns()) != 1 {
		t.Fatalf("expected one pattern, got %d", len(s.Patterns()))
	}
}

func TestTestStarMatchesOneSegment(t *testing.T) {
	var s Set
	must(t, s.Add("*.tmp"))
	if !s.Test("foo.tmp") {
		t.Fatal("expected foo.tmp to match *.tmp")
	}
	if !s.Test("dir/foo.tmp") {
		t.Fatal("unanchored single-segment pattern should still match basenames in subdirectories")
	}
}

func TestDoubleStarMatchesAcrossSegments(t *testing.T) {
	var s Set
	must(t, s.Add("/cache/**"))
	if !s.Test("cache/a/b/c.dat") {
		t.Fatal("expected cache/a/b/c.dat to match /cache/**")
	}
	if s.Test("other/cache/a") {
		t.Fatal("anchored pattern should not match unanchored path")
	}
}

func TestTrailingSlashMatchesDirectoryAndChildren(t *testing.T) {
	var s Set
	must(t, s.Add("/build/"))
	if !s.Test("build") {
		t.Fatal("expected bare directory path to match")
	}
	if !s.Test("build/output.o") {
		t.Fatal("expected child of excluded directory to match")
	}
	if s.Test("rebuild") {
		t.Fatal("trailing-slash pattern should not match a differently named directory")
	}
}

func TestLoadFileSkipsInclusionsAndStripsMinus(t *testing.T) {
	var s Set
	input := strings.NewReader("+included\n-*.log\n  *.bak\n\n")
	if err := s.LoadFile(input); err != nil {
		t.Fatal(err)
	}
	if s.Test("included") {
		t.Fatal("inclusion line should not have been added as a pattern")
	}
	if !s.Test("debug.log") {
		t.Fatal("expected *.log pattern to be loaded")
	}
	if !s.Test("state.bak") {
		t.Fatal("expected *.bak pattern to be loaded")
	}
}

func TestRemove(t *testing.T) {
	var s Set
	must(t, s.Add("*.tmp"))
	s.Remove("*.tmp")
	if s.Test("foo.tmp") {
		t.Fatal("expected removed pattern to no longer match")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
