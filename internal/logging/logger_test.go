package logging

import "testing"

func TestInitWithEmptyDSNIsNoop(t *testing.T) {
	if err := Init("", "test"); err != nil {
		t.Errorf("expected no error for empty dsn, got %v", err)
	}
}

func TestLoggerDoesNotPanicWithoutSentry(t *testing.T) {
	l := NewLogger("test")
	l.Info("hello", Fields{"a": 1})
	l.Warn("careful", nil)
	l.Error("boom", Fields{"err": errString("oops")})
	l.Debug("detail", Fields{"x": "y"})
}

type errString string

func (e errString) Error() string { return string(e) }
