package logging

import (
	"io"
	"log"
	"log/syslog"

	"github.com/pkg/errors"
)

// ConfigureFile redirects all logging output to the file at path, appending
// to it or creating it as necessary. This is the -logfile flag's implementation.
func ConfigureFile(path string) (io.Closer, error) {
	sink, err := newFileSink(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open log file")
	}
	log.SetOutput(sink)
	log.SetFlags(log.Ldate | log.Ltime)
	return sink, nil
}

// ConfigureSyslog redirects all logging output to the local syslog daemon
// under the given process tag. This is the default sink when -logfile is not
// specified, matching the teacher's convention of defaulting to a system
// log facility for a background daemon. There is no third-party syslog
// client among the example dependencies, so this uses the standard
// library's log/syslog directly.
func ConfigureSyslog(tag string) (io.Closer, error) {
	writer, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to syslog")
	}
	log.SetOutput(writer)
	log.SetFlags(0)
	return writer, nil
}
