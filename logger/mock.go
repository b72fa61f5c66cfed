package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger records log calls through testify/mock so tests can assert
// which level a component logged at. Each log call is recorded as the
// level method name, the message and the key/value slice.
type MockLogger struct {
	mock.Mock

	level Level
}

var _ Logger = (*MockLogger)(nil)

// NewMockLogger returns a mock that accepts no calls until expectations are
// set, with its level at DebugLevel.
func NewMockLogger() *MockLogger {
	return &MockLogger{level: DebugLevel}
}

// Allow accepts any number of calls at the given level methods, so a test
// can focus its expectations on the others.
func (m *MockLogger) Allow(methods ...string) *MockLogger {
	for _, name := range methods {
		m.On(name, mock.Anything, mock.Anything).Maybe()
	}

	return m
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

// SetLevel and Level are not recorded.
func (m *MockLogger) SetLevel(level Level) { m.level = level }

func (m *MockLogger) Level() Level { return m.level }

// With returns m itself; fields are not recorded.
func (m *MockLogger) With(...any) Logger { return m }
