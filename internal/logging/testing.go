package logging

import "testing"

type testLogger struct {
	tb testing.TB
}

// NewTestLogger writes through tb so output shows up with the test that
// produced it. Logging an error fails the test.
func NewTestLogger(tb testing.TB) Logger {
	return testLogger{tb: tb}
}

func (l testLogger) Error(err error, fields Fields) {
	l.tb.Helper()
	l.tb.Errorf("ERROR %+v %s", err, fields)
}

func (l testLogger) Warn(msg string, fields Fields) {
	l.tb.Helper()
	l.tb.Logf("WARN %s %s", msg, fields)
}

func (l testLogger) Info(msg string, fields Fields) {
	l.tb.Helper()
	l.tb.Logf("INFO %s %s", msg, fields)
}

func (l testLogger) Debug(msg string, fields Fields) {
	l.tb.Helper()
	l.tb.Logf("DEBUG %s %s", msg, fields)
}
