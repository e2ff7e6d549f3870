package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventSessionLogin      EventType = "session.login"
	EventSessionLogout     EventType = "session.logout"
	EventSessionTerminated EventType = "session.terminated"
	EventRequestApproved   EventType = "request.approved"
	EventRequestRejected   EventType = "request.rejected"
	EventMemberSuspended   EventType = "member.suspended"
	EventMemberReinstated  EventType = "member.reinstated"
)

type Event struct {
	Type      EventType      `json:"type"`
	ActorID   string         `json:"actorId,omitempty"`
	ChapterID string         `json:"chapterId,omitempty"`
	TargetID  string         `json:"targetId,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

// Sink keeps audit events beyond the log stream.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

type Auditor struct {
	logger *slog.Logger
	sink   Sink
}

// NewAuditor writes events to logger and, when sink is non-nil, to sink.
func NewAuditor(logger *slog.Logger, sink Sink) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger.With("component", "audit"), sink: sink}
}

// Record never fails the caller; a sink error is logged.
func (a *Auditor) Record(ctx context.Context, e Event) {
	if a == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	attrs := []any{"event", string(e.Type)}
	if e.ActorID != "" {
		attrs = append(attrs, "actor_id", e.ActorID)
	}
	if e.ChapterID != "" {
		attrs = append(attrs, "chapter_id", e.ChapterID)
	}
	if e.TargetID != "" {
		attrs = append(attrs, "target_id", e.TargetID)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	for k, v := range e.Data {
		attrs = append(attrs, k, v)
	}
	a.logger.InfoContext(ctx, "Audit event", attrs...)

	if a.sink == nil {
		return
	}
	if err := a.sink.Append(ctx, e); err != nil {
		a.logger.ErrorContext(ctx, "Failed to store audit event", "event", string(e.Type), "error", err)
	}
}

// MemorySink keeps the most recent events in memory.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
	max    int
}

func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = 1000
	}
	return &MemorySink{max: limit}
}

func (m *MemorySink) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if over := len(m.events) - m.max; over > 0 {
		m.events = append([]Event(nil), m.events[over:]...)
	}
	return nil
}

// Events returns a copy, oldest first.
func (m *MemorySink) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.events...)
}

// Types lists the recorded event types in order, for assertions.
func (m *MemorySink) Types() []EventType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}
