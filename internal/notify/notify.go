// Package notify carries user-facing messages (rollbacks, merge adjustments) out of the engine.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Severity ranks a notification.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = Info
	case "warning":
		*s = Warning
	case "error":
		*s = Error
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Sink receives notifications. Implementations must be safe for concurrent use and
// must not block for long; the engine calls them from write goroutines.
type Sink interface {
	Notify(ctx context.Context, severity Severity, message string)
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink that logs at a level matching the severity.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, severity Severity, message string) {
	level := slog.LevelInfo
	switch severity {
	case Warning:
		level = slog.LevelWarn
	case Error:
		level = slog.LevelError
	}
	s.logger.LogAttrs(ctx, level, "cart notification",
		slog.String("severity", severity.String()),
		slog.String("message", message),
	)
}

// Message is one recorded notification.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"message"`
}

// Recorder keeps the notifications it receives, most recent last. Optionally forwards
// each one to Next. The session server exposes the recorded messages to clients.
type Recorder struct {
	Next Sink

	mu       sync.Mutex
	messages []Message
	limit    int
}

// NewRecorder returns a recorder holding at most limit messages (0 means unbounded).
func NewRecorder(limit int, next Sink) *Recorder {
	return &Recorder{Next: next, limit: limit}
}

func (r *Recorder) Notify(ctx context.Context, severity Severity, message string) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Severity: severity, Text: message})
	if r.limit > 0 && len(r.messages) > r.limit {
		r.messages = r.messages[len(r.messages)-r.limit:]
	}
	r.mu.Unlock()

	if r.Next != nil {
		r.Next.Notify(ctx, severity, message)
	}
}

// Messages returns a copy of the recorded notifications.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Drain returns the recorded notifications and forgets them.
func (r *Recorder) Drain() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	return out
}

// Discard drops every notification.
var Discard Sink = discard{}

type discard struct{}

func (discard) Notify(context.Context, Severity, string) {}
