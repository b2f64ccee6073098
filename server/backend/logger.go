package backend

// Logger is the structured logging contract used across the plugin.
// It matches the Mattermost pluginapi LogService: a message followed by
// alternating keys and values.
type Logger interface {
	Debug(message string, keyValuePairs ...interface{})
	Info(message string, keyValuePairs ...interface{})
	Warn(message string, keyValuePairs ...interface{})
	Error(message string, keyValuePairs ...interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

// Debug discards the message.
func (NopLogger) Debug(string, ...interface{}) {}

// Info discards the message.
func (NopLogger) Info(string, ...interface{}) {}

// Warn discards the message.
func (NopLogger) Warn(string, ...interface{}) {}

// Error discards the message.
func (NopLogger) Error(string, ...interface{}) {}
