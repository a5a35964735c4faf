package logging

import "os"

// newFileSink opens path for append-only writing, creating it if necessary.
func newFileSink(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
}
