package definition

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func newTestLogger() (*DefaultLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &DefaultLogger{Logger: log.New(&buf, "", 0)}, &buf
}

func TestDefaultLoggerDebugSuppressedUntilToggled(t *testing.T) {
	l, buf := newTestLogger()

	l.Debugf("quiet %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output before ToggleDebug, got %q", buf.String())
	}

	l.ToggleDebug(true)
	l.Debugf("loud %d", 2)
	if !strings.Contains(buf.String(), "[DEBUG]: loud 2") {
		t.Fatalf("expected debug line after ToggleDebug, got %q", buf.String())
	}
}

func TestDefaultLoggerLevelsPrefixMessages(t *testing.T) {
	cases := []struct {
		name string
		call func(l *DefaultLogger)
		want string
	}{
		{"info", func(l *DefaultLogger) { l.Infof("hi %s", "there") }, "[INFO]: hi there"},
		{"warn", func(l *DefaultLogger) { l.Warnf("careful %d", 3) }, "[WARN]: careful 3"},
		{"error", func(l *DefaultLogger) { l.Errorf("boom %d", 4) }, "[ERROR]: boom 4"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l, buf := newTestLogger()
			c.call(l)
			if !strings.Contains(buf.String(), c.want) {
				t.Errorf("expected %q in output, got %q", c.want, buf.String())
			}
		})
	}
}

func TestDefaultLoggerToggleDebugReturnsNewValue(t *testing.T) {
	l, _ := newTestLogger()
	if got := l.ToggleDebug(true); !got {
		t.Fatalf("ToggleDebug(true) returned %v", got)
	}
	if got := l.ToggleDebug(false); got {
		t.Fatalf("ToggleDebug(false) returned %v", got)
	}
}
