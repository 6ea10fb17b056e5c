package logger

import (
	"fmt"
	"strings"
	"sync"
)

// NoopLogger discards output but records it, so tests can assert on what was logged.
type NoopLogger struct {
	mu      sync.Mutex
	entries []Entry
}

type Entry struct {
	Level   string
	Message string
}

func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (l *NoopLogger) Title(msg string, args ...any) { l.record("title", msg, args...) }
func (l *NoopLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *NoopLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *NoopLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *NoopLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }

func (l *NoopLogger) record(level, msg string, args ...any) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Message: msg})
}

// Entries returns a copy of everything logged so far.
func (l *NoopLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Contains reports whether any entry at level contains substr.
func (l *NoopLogger) Contains(level, substr string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
