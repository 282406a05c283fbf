package hybrid

import "github.com/sirupsen/logrus"

// log is the package-level structured logger. Callers of NewAllocator may
// swap it via SetLogger to route allocator diagnostics into their own
// logrus hierarchy (e.g. tagged with a service name).
var log = logrus.WithField("component", "hybrid")

// SetLogger replaces the package logger, e.g. to attach it to an
// application-wide logrus.Logger with its own output and hooks.
func SetLogger(entry *logrus.Entry) {
	if entry != nil {
		log = entry
	}
}

func debugf(format string, v ...interface{}) { log.Debugf(format, v...) }
func infof(format string, v ...interface{})  { log.Infof(format, v...) }
func warnf(format string, v ...interface{})  { log.Warnf(format, v...) }
func errorf(format string, v ...interface{}) { log.Errorf(format, v...) }
