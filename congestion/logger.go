// Package congestion tracks recent chunk processing outcomes in a sliding
// window and derives an ideal producer delay from the drop ratio, grounded
// on the CongestionController component.
package congestion

import "github.com/sirupsen/logrus"

var log = logrus.WithField("component", "congestion")

// SetLogger swaps the package logger, e.g. to attach it to an
// application-wide logrus.Logger.
func SetLogger(entry *logrus.Entry) {
	if entry != nil {
		log = entry
	}
}
