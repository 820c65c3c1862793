package core

import (
	"sync"
	"time"
)

// Audit Log
//
// Append-only in-memory sink for state transitions: merges, splits,
// override approvals, SAR filings, screening escalations. Each entry
// captures who did what to which target, with optional before/after
// snapshots for transitions that change externally visible state.

// AuditEntry is one recorded action.
type AuditEntry struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`
	Before    string    `json:"before,omitempty"`
	After     string    `json:"after,omitempty"`
}

// AuditLog is a bounded append-only audit sink.
type AuditLog struct {
	mu         sync.RWMutex
	entries    []AuditEntry
	maxEntries int
}

// NewAuditLog creates an audit log retaining the most recent entries.
func NewAuditLog() *AuditLog {
	return &AuditLog{maxEntries: 10000}
}

// Record appends one entry.
func (l *AuditLog) Record(actor, action, target, before, after string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, AuditEntry{
		Actor:     actor,
		Action:    action,
		Target:    target,
		Timestamp: time.Now().UTC(),
		Before:    before,
		After:     after,
	})
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
}

// Recent returns the most recent entries, newest first.
func (l *AuditLog) Recent(limit int) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]AuditEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = l.entries[len(l.entries)-1-i]
	}
	return out
}

// ForTarget returns every entry recorded against one target, oldest first.
func (l *AuditLog) ForTarget(target string) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []AuditEntry
	for _, e := range l.entries {
		if e.Target == target {
			out = append(out, e)
		}
	}
	return out
}
