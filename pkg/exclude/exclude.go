// Package exclude implements the pattern matcher used to filter filesystem
// paths out of a sync's delay FIFO before they're ever queued.
//
// Patterns follow rsync-filter-like glob semantics rather than full
// doublestar globbing: a leading slash anchors at the sync root, a trailing
// slash matches a directory and everything beneath it, and "**" spans
// multiple path segments in a way that doesn't correspond to any single
// standard glob library's default behavior. Rather than bending a
// third-party globber to fit, patterns are compiled directly to regexp.Regexp
// (see DESIGN.md).
package exclude

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/axkibe/lsyncd-go/pkg/logging"
)

// entry pairs a user-supplied pattern with its compiled matcher.
type entry struct {
	pattern string
	matcher *regexp.Regexp
}

// Set is an ordered collection of exclude patterns. Its zero value is a
// valid, empty set. It is not safe for concurrent use, matching the rest of
// the engine's single-threaded design.
type Set struct {
	entries []entry
}

// metacharacters that need regexp escaping before glob translation runs.
var metacharacters = regexp.MustCompile(`[.+()|{}^$\\]`)

// compile translates a single exclude pattern into a regular expression per
// the compilation rules: '?' matches one non-slash character, '*' matches
// any run of non-slash characters, '**' matches anything (including
// slashes), a leading '/' anchors the match at the sync root, and a trailing
// '/' means "this directory and everything under it".
func compile(pattern string) (*regexp.Regexp, error) {
	anchored := strings.HasPrefix(pattern, "/")
	body := strings.TrimPrefix(pattern, "/")

	isDir := strings.HasSuffix(body, "/")
	body = strings.TrimSuffix(body, "/")

	var out strings.Builder
	if anchored {
		out.WriteByte('^')
	} else {
		out.WriteString("(^|.*/)")
	}

	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				out.WriteString(".*")
				i++
			} else {
				out.WriteString("[^/]*")
			}
		case '?':
			out.WriteString("[^/]")
		default:
			out.WriteString(metacharacters.ReplaceAllString(string(r), `\$0`))
		}
	}

	if isDir {
		out.WriteString("(/.*)?$")
	} else {
		out.WriteString("$")
	}

	return regexp.Compile(out.String())
}

// Add compiles pattern and appends it to the set. Adding a pattern that is
// already present is a no-op, making repeated Add calls idempotent.
func (s *Set) Add(pattern string) error {
	for _, e := range s.entries {
		if e.pattern == pattern {
			return nil
		}
	}

	matcher, err := compile(pattern)
	if err != nil {
		return errors.Wrapf(err, "unable to compile exclude pattern %q", pattern)
	}

	s.entries = append(s.entries, entry{pattern: pattern, matcher: matcher})
	return nil
}

// Remove drops pattern from the set by its original string. Removing a
// pattern that isn't present logs a warning but is not an error.
func (s *Set) Remove(pattern string) {
	for i, e := range s.entries {
		if e.pattern == pattern {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
	logging.RootLogger.Warn(errors.Errorf("attempted to remove absent exclude pattern %q", pattern))
}

// LoadFile parses one pattern per line from r. Leading whitespace and a
// leading '-' are stripped from each line. Lines beginning with '+' are
// inclusion rules, which are not supported by this daemon; they are skipped
// with a log message rather than rejected outright.
func (s *Set) LoadFile(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimLeft(scanner.Text(), " \t")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "+") {
			logging.RootLogger.Printf("exclude file: inclusion rule %q is not supported, skipping", line)
			continue
		}
		line = strings.TrimPrefix(line, "-")
		line = strings.TrimLeft(line, " \t")
		if line == "" {
			continue
		}
		if err := s.Add(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Test reports whether relativePath matches any pattern in the set.
func (s *Set) Test(relativePath string) bool {
	for _, e := range s.entries {
		if e.matcher.MatchString(relativePath) {
			return true
		}
	}
	return false
}

// Patterns returns the original pattern strings, in insertion order, for
// display in the status file.
func (s *Set) Patterns() []string {
	patterns := make([]string, len(s.entries))
	for i, e := range s.entries {
		patterns[i] = e.pattern
	}
	return patterns
}
