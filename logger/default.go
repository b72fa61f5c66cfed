package logger

import "sync/atomic"

var defLogger atomic.Pointer[loggerHolder]

type loggerHolder struct{ Logger }

func init() {
	defLogger.Store(&loggerHolder{NewSlog(WarnLevel, false)})
}

// GetLogger returns the process-wide default logger. Components fall back to
// it when no logger is configured. It logs warnings and errors to stderr
// until SetLogger replaces it.
func GetLogger() Logger {
	return defLogger.Load().Logger
}

// SetLogger replaces the process-wide default logger. A nil logger is
// ignored.
func SetLogger(l Logger) {
	if l != nil {
		defLogger.Store(&loggerHolder{l})
	}
}
