package stubrunner

import (
	"context"
	"sync"
	"time"
)

// DefaultJournalMaxEntries is how many requests a journal keeps by default.
const DefaultJournalMaxEntries = 1000

// JournalEntry records one request received by the stub runner.
type JournalEntry struct {
	ID          string    `json:"id"`
	Contract    string    `json:"contract,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	Body        string    `json:"body,omitempty"`
	Matched     bool      `json:"matched"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Journal stores received requests, oldest first.
// Implementations must be safe for concurrent use.
type Journal interface {
	// Append records an entry, evicting the oldest entries beyond capacity.
	Append(ctx context.Context, entry JournalEntry) error

	// Entries returns the recorded entries, oldest first.
	Entries(ctx context.Context) ([]JournalEntry, error)

	// Reset discards all entries.
	Reset(ctx context.Context) error

	// Close releases any resources held by the journal.
	Close() error
}

// MemoryJournal implements Journal in process memory.
// This is suitable for a single stub runner instance.
type MemoryJournal struct {
	mu         sync.RWMutex
	entries    []JournalEntry
	maxEntries int
}

// NewMemoryJournal creates an in-memory journal keeping at most maxEntries.
func NewMemoryJournal(maxEntries int) *MemoryJournal {
	if maxEntries <= 0 {
		maxEntries = DefaultJournalMaxEntries
	}
	return &MemoryJournal{maxEntries: maxEntries}
}

// Append records an entry.
func (j *MemoryJournal) Append(_ context.Context, entry JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, entry)
	if over := len(j.entries) - j.maxEntries; over > 0 {
		j.entries = append(j.entries[:0:0], j.entries[over:]...)
	}
	return nil
}

// Entries returns a copy of the recorded entries.
func (j *MemoryJournal) Entries(_ context.Context) ([]JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out, nil
}

// Reset discards all entries.
func (j *MemoryJournal) Reset(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
	return nil
}

// Close is a no-op for the memory journal.
func (j *MemoryJournal) Close() error {
	return nil
}
