package sftp

import "github.com/sirupsen/logrus"

// debug emits a trace-level diagnostic; enable with logrus's trace level to
// see packet-level chatter without instrumenting every call site.
func debug(format string, args ...interface{}) {
	logrus.WithField("component", "sftp").Tracef(format, args...)
}
