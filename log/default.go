package log

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

const serviceName = "commandcenter"

//DefaultLogger returns a zerolog backed implementation of Logger writing json lines into out, os.Stdout if out is nil
func DefaultLogger(out io.Writer) Logger {
	if out == nil {
		out = os.Stdout
	}

	zl := zerolog.New(out).With().Timestamp().Str("service", serviceName).Logger()

	return &defaultLogger{internalLogger: zl.Level(zerolog.InfoLevel), level: InfoLevel}
}

type defaultLogger struct {
	internalLogger zerolog.Logger
	level          Level
}

func (l defaultLogger) Log(level Level, v ...interface{}) {
	l.write(level, fmt.Sprint(v...))
}

func (l defaultLogger) Logf(level Level, template string, args ...interface{}) {
	l.write(level, fmt.Sprintf(template, args...))
}

func (l defaultLogger) write(level Level, msg string) {
	switch level {
	case PanicLevel:
		l.internalLogger.Panic().Msg(msg)
	case FatalLevel:
		l.internalLogger.Fatal().Msg(msg)
	default:
		if level <= l.level {
			l.internalLogger.WithLevel(zerologLevels[level]).Msg(msg)
		}
	}
}

func (l *defaultLogger) SetLevel(level Level) {
	l.level = level
	l.internalLogger = l.internalLogger.Level(zerologLevels[level])
}

func (l defaultLogger) WithFields(fields []Field) Logger {
	ctx := l.internalLogger.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Name, f.Val)
	}

	return &defaultLogger{internalLogger: ctx.Logger(), level: l.level}
}

var zerologLevels = map[Level]zerolog.Level{
	PanicLevel: zerolog.PanicLevel,
	FatalLevel: zerolog.FatalLevel,
	ErrorLevel: zerolog.ErrorLevel,
	WarnLevel:  zerolog.WarnLevel,
	InfoLevel:  zerolog.InfoLevel,
	DebugLevel: zerolog.DebugLevel,
	TraceLevel: zerolog.TraceLevel,
}
