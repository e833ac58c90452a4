package log

import (
	"fmt"
	"sync"

	"github.com/go-foreman/commandcenter/log"
)

//NewNilLogger returns a logger that prints nothing but remembers every entry, including the ones of loggers derived by WithFields
func NewNilLogger() *testLogger {
	return &testLogger{entriesStore: &entriesStore{}, level: log.TraceLevel}
}

type entriesStore struct {
	mutex   sync.Mutex
	entries []entry
}

type testLogger struct {
	level        log.Level
	fields       []log.Field
	entriesStore *entriesStore
}

type entry struct {
	Msg    string
	Level  log.Level
	Fields []log.Field
}

func (n *testLogger) Log(level log.Level, v ...interface{}) {
	n.add(level, fmt.Sprint(v...))
}

func (n *testLogger) Logf(level log.Level, template string, args ...interface{}) {
	n.add(level, fmt.Sprintf(template, args...))
}

func (n *testLogger) add(level log.Level, msg string) {
	n.entriesStore.mutex.Lock()
	defer n.entriesStore.mutex.Unlock()

	n.entriesStore.entries = append(n.entriesStore.entries, entry{Msg: msg, Level: level, Fields: n.fields})
}

func (n *testLogger) SetLevel(level log.Level) {
	n.level = level
}

func (n *testLogger) WithFields(fields []log.Field) log.Logger {
	merged := make([]log.Field, 0, len(n.fields)+len(fields))
	merged = append(merged, n.fields...)
	merged = append(merged, fields...)

	return &testLogger{
		entriesStore: n.entriesStore,
		level:        n.level,
		fields:       merged,
	}
}

func (n *testLogger) Entries() []entry {
	n.entriesStore.mutex.Lock()
	defer n.entriesStore.mutex.Unlock()

	res := make([]entry, len(n.entriesStore.entries))
	copy(res, n.entriesStore.entries)
	return res
}

func (n *testLogger) Messages() []string {
	entries := n.Entries()
	r := make([]string, len(entries))
	for i := range entries {
		r[i] = entries[i].Msg
	}

	return r
}

// MessagesWithLevel returns messages of entries logged exactly with the level
func (n *testLogger) MessagesWithLevel(level log.Level) []string {
	var r []string
	for _, e := range n.Entries() {
		if e.Level == level {
			r = append(r, e.Msg)
		}
	}

	return r
}

func (n *testLogger) LastMessage() string {
	entries := n.Entries()
	if len(entries) > 0 {
		return entries[len(entries)-1].Msg
	}

	return ""
}

func (n *testLogger) Clear() {
	n.entriesStore.mutex.Lock()
	defer n.entriesStore.mutex.Unlock()

	n.entriesStore.entries = make([]entry, 0)
	n.level = log.InfoLevel
	n.fields = nil
}
