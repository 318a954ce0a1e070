package httpmw

import (
	"context"
	"sync"

	"github.com/keithlinneman/pagepush/internal/log"
)

type entry struct {
	level string
	msg   string
	err   error
	kv    map[string]any
}

// spyLogger records every call; With-derived loggers share the sink.
type spyLogger struct {
	mu      *sync.Mutex
	entries *[]entry
	fields  []any
}

func newSpy() *spyLogger {
	return &spyLogger{mu: &sync.Mutex{}, entries: &[]entry{}}
}

func (s *spyLogger) With(kv ...any) log.Logger {
	f := append(append([]any{}, s.fields...), kv...)
	return &spyLogger{mu: s.mu, entries: s.entries, fields: f}
}

func (s *spyLogger) record(level string, err error, msg string, kv []any) {
	all := append(append([]any{}, s.fields...), kv...)
	m := make(map[string]any, len(all)/2)
	for i := 0; i+1 < len(all); i += 2 {
		if k, ok := all[i].(string); ok {
			m[k] = all[i+1]
		}
	}
	s.mu.Lock()
	*s.entries = append(*s.entries, entry{level: level, msg: msg, err: err, kv: m})
	s.mu.Unlock()
}

func (s *spyLogger) Debug(_ context.Context, msg string, kv ...any) { s.record("debug", nil, msg, kv) }
func (s *spyLogger) Info(_ context.Context, msg string, kv ...any)  { s.record("info", nil, msg, kv) }
func (s *spyLogger) Warn(_ context.Context, msg string, kv ...any)  { s.record("warn", nil, msg, kv) }
func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.record("error", err, msg, kv)
}
func (s *spyLogger) Sync() error { return nil }

func (s *spyLogger) all() []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entry(nil), *s.entries...)
}
