package core

// Logger is the application-wide logging contract.
// Implementations may forward to an error-tracking backend in addition to
// printing locally; extra args are attached to the reported event.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
