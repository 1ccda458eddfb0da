package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryJournal is an in-memory, thread-safe Journal.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemory creates a MemoryJournal holding only the genesis entry.
func NewMemory() *MemoryJournal {
	return &MemoryJournal{entries: []*Entry{genesisEntry()}}
}

// Append implements Journal.
func (j *MemoryJournal) Append(_ context.Context, rec Record) (*Entry, error) {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	prev := j.entries[len(j.entries)-1]
	entry := &Entry{
		Index:       len(j.entries),
		Timestamp:   time.Now().UTC(),
		OperationID: rec.OperationID,
		TxHash:      rec.TxHash,
		Method:      rec.Method,
		Account:     rec.Account,
		Status:      rec.Status,
		DataHash:    sha256Sum(payloadJSON),
		PrevHash:    prev.Hash,
	}
	entry.Hash = hashEntry(entry)
	j.entries = append(j.entries, entry)
	return entry, nil
}

// Get implements Journal.
func (j *MemoryJournal) Get(_ context.Context, index int) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if index < 0 || index >= len(j.entries) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	e := *j.entries[index]
	return &e, nil
}

// Len implements Journal.
func (j *MemoryJournal) Len(_ context.Context) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries), nil
}

// Verify implements Journal.
func (j *MemoryJournal) Verify(_ context.Context) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var prev *Entry
	for _, curr := range j.entries {
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Journal.
func (j *MemoryJournal) Root(_ context.Context) (string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.entries[len(j.entries)-1].Hash, nil
}
