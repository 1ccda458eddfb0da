// Package journal keeps a tamper-evident record of settled mutations.
//
// The chain begins with a well-known genesis entry whose Hash equals
// GenesisHash (64 hex zeros). Every later entry records the SHA-256 of its
// predecessor, so any edit to a stored settlement is detectable via Verify.
//
// Two implementations of the Journal interface are provided:
//   - MemoryJournal: in-process, for tests and the simulated ledger.
//   - PostgresJournal: durable, backed by pgx.
package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenesisHash is the hash of the genesis entry and the anchor of the chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is what a caller appends: one settled (or failed) mutation.
type Record struct {
	OperationID string // correlates submit and settle log lines
	TxHash      string
	Method      string
	Account     string
	Status      string // confirmed or failed
	Payload     any    // JSON-marshalled; only its digest is chained
}

// Entry is one link in the journal chain.
type Entry struct {
	Index       int       `json:"index"`
	Timestamp   time.Time `json:"timestamp"`
	OperationID string    `json:"operation_id"`
	TxHash      string    `json:"tx_hash"`
	Method      string    `json:"method"`
	Account     string    `json:"account"`
	Status      string    `json:"status"`
	DataHash    string    `json:"data_hash"`
	PrevHash    string    `json:"prev_hash"`
	Hash        string    `json:"hash"`
}

// Journal is an append-only hash-chained log of settlements.
type Journal interface {
	// Append chains rec to the current tip.
	Append(ctx context.Context, rec Record) (*Entry, error)

	// Get returns the entry at the zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Len returns the number of entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Verify walks the chain and returns nil if it is intact.
	Verify(ctx context.Context) error

	// Root returns the hash of the latest entry.
	Root(ctx context.Context) (string, error)
}

// hashEntry must never be called on the genesis entry.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.Format(time.RFC3339Nano),
		e.OperationID, e.TxHash, e.Method, e.Account, e.Status,
		e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func genesisEntry() *Entry {
	return &Entry{
		Index:     0,
		Timestamp: time.Now().UTC(),
		Method:    "genesis",
		Account:   "propchain",
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}
}

// verifyLink checks curr against its predecessor; prev is nil for genesis.
func verifyLink(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	return nil
}
