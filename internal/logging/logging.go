// Package logging is the structured logging facade shared by every
// component. Components accept a Logger; the command line builds one backed
// by logrus, tests use NewTestLogger and library defaults NewNullLogger.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Fields is the structured context attached to a log line.
type Fields map[string]interface{}

// Logger is the logging surface components depend on. Nil Fields are fine.
type Logger interface {
	Error(err error, fields Fields)
	Warn(msg string, fields Fields)
	Info(msg string, fields Fields)
	Debug(msg string, fields Fields)
}

// Options selects how the logrus backend renders.
type Options struct {
	Level  string    // any logrus level name, info when empty
	Format string    // text or json, text when empty
	Output io.Writer // stdout when nil
}

// New builds a logrus backed Logger.
func New(opts Options) (Logger, error) {
	if opts.Level == "" {
		opts.Level = "info"
	}
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", opts.Level)
	}

	var formatter logrus.Formatter
	switch opts.Format {
	case "", "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return nil, errors.Errorf("invalid log format %q", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(level)
	base.SetFormatter(formatter)
	return entryLogger{entry: logrus.NewEntry(base)}, nil
}

// NewLogrusLogger logs to stdout at level in format.
func NewLogrusLogger(level, format string) (Logger, error) {
	return New(Options{Level: level, Format: format})
}

// NewNullLogger drops everything.
func NewNullLogger() Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return entryLogger{entry: logrus.NewEntry(base)}
}

type entryLogger struct {
	entry *logrus.Entry
}

// Error logs err at error level. When err or anything it wraps carries a
// pkg/errors stack, the stack is attached under "stack".
func (l entryLogger) Error(err error, fields Fields) {
	e := l.entry.WithFields(logrus.Fields(fields))
	if err == nil {
		e.Error("<nil>")
		return
	}
	var traced interface{ StackTrace() errors.StackTrace }
	if errors.As(err, &traced) {
		e = e.WithField("stack", fmt.Sprintf("%+v", traced.StackTrace()))
	}
	e.Error(err.Error())
}

func (l entryLogger) Warn(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (l entryLogger) Info(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l entryLogger) Debug(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

// String renders fields as space separated key=value pairs in key order.
func (f Fields) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, f[k])
	}
	return b.String()
}
