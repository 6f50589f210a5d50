// Package logging is a thin leveled-logger facade over logrus. It keeps
// the call shape of a hand-rolled logger (Debug/Info/Warn/Error/Fatal,
// WithField/WithFields) while delegating formatting and coloring to
// logrus. Caller-frame reporting is not enabled.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Entry so call sites look like a small custom
// logger rather than a raw logrus.Entry.
type Logger struct {
	entry *logrus.Entry
}

// New creates a Logger writing to output at the given level. level
// accepts logrus level names ("debug", "info", "warn", "error",
// "fatal"); an unrecognized name falls back to "info".
func New(level string, output io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(output)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &Logger{entry: logrus.NewEntry(l)}
}

// NewDefault creates a Logger at info level writing to stderr, the
// default every component falls back to before configuration is known.
func NewDefault() *Logger {
	return New("info", os.Stderr)
}

// WithField returns a derived Logger carrying one structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a derived Logger carrying several structured
// fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Fatal logs at fatal level then terminates the process with a nonzero
// exit code, for errors that leave startup unable to proceed.
func (l *Logger) Fatal(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }
