package logger

import "go.uber.org/zap"

// String constructs a string field
func String(key, value string) Field {
	return zap.String(key, value)
}

// Int constructs an int field
func Int(key string, value int) Field {
	return zap.Int(key, value)
}

// Int64 constructs an int64 field
func Int64(key string, value int64) Field {
	return zap.Int64(key, value)
}

// Bool constructs a bool field
func Bool(key string, value bool) Field {
	return zap.Bool(key, value)
}

// Any constructs a field with an arbitrary value
func Any(key string, value interface{}) Field {
	return zap.Any(key, value)
}

// Error constructs a field from an error
func Error(err error) Field {
	return zap.Error(err)
}

// NewTest returns a no-op logger for tests
func NewTest() Logger {
	return &loggerImpl{zap: zap.NewNop()}
}
