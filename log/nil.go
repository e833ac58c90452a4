package log

//NewNilLogger drops every entry, components fall back to it when no logger is configured
func NewNilLogger() Logger {
	return &nilLogger{}
}

type nilLogger struct{}

func (n nilLogger) Log(Level, ...interface{}) {}

func (n nilLogger) Logf(Level, string, ...interface{}) {}

func (n nilLogger) SetLevel(Level) {}

func (n *nilLogger) WithFields([]Field) Logger {
	return n
}
