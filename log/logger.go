package log

// Level of a log entry. The lower the value the more severe the entry.
type Level uint32

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

// Field is a key/value pair attached to every entry of a logger created by WithFields
type Field struct {
	Name string
	Val  interface{}
}

// Logger is used by every component of the command center
type Logger interface {
	Log(level Level, v ...interface{})
	Logf(level Level, template string, args ...interface{})
	SetLevel(level Level)
	WithFields(fields []Field) Logger
}

var levelNames = map[Level]string{
	PanicLevel: "panic",
	FatalLevel: "fatal",
	ErrorLevel: "error",
	WarnLevel:  "warn",
	InfoLevel:  "info",
	DebugLevel: "debug",
	TraceLevel: "trace",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLevel converts a level name into Level, unknown names fall back to InfoLevel with ok=false
func ParseLevel(name string) (Level, bool) {
	for lvl, n := range levelNames {
		if n == name {
			return lvl, true
		}
	}
	return InfoLevel, false
}
