// Package logrus adapts a logrus.Entry to the casdict Logger interface.
package logrus

import (
	"github.com/sirupsen/logrus"
	casdict "github.com/unkn0wn-root/casdict"
)

var _ casdict.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f casdict.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f casdict.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f casdict.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f casdict.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
