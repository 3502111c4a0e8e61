package emv

// Logger receives diagnostic messages from a Reader. key names the step
// ("select", "gpo", "record", "apdu"...).
type Logger interface {
	Log(key, message string)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(key, message string)

// Log calls f(key, message).
func (f LoggerFunc) Log(key, message string) {
	f(key, message)
}

// NopLogger discards every message.
type NopLogger struct{}

// Log does nothing.
func (NopLogger) Log(string, string) {}
