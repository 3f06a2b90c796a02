package types

// Logger is the logging contract used throughout pkg/dme. It mirrors the
// interface implemented by definition.DefaultLogger so either the default
// stdlib-backed logger or a caller-supplied structured logger can be
// plugged in at Config time.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	ToggleDebug(value bool) bool
}
