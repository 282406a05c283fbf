// Package engine implements the single-threaded cooperative dataflow
// scheduler: a central dispatcher FIFO, a routing graph of waypoints, and a
// CPU/disk token economy that paces how fast waypoints may produce work,
// grounded on ExecEngineImp.
package engine

import "github.com/sirupsen/logrus"

var log = logrus.WithField("component", "engine")

// SetLogger swaps the package logger, e.g. to attach it to an
// application-wide logrus.Logger.
func SetLogger(entry *logrus.Entry) {
	if entry != nil {
		log = entry
	}
}

func debugf(format string, v ...interface{}) { log.Debugf(format, v...) }
func infof(format string, v ...interface{})  { log.Infof(format, v...) }
func warnf(format string, v ...interface{})  { log.Warnf(format, v...) }
func errorf(format string, v ...interface{}) { log.Errorf(format, v...) }
