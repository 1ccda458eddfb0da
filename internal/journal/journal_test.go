package journal_test

import (
	"context"
	"testing"

	"github.com/jmerrifield20/propchain/internal/journal"
)

var ctx = context.Background()

func rec(tx, status string) journal.Record {
	return journal.Record{
		OperationID: "op-" + tx,
		TxHash:      tx,
		Method:      "buyProperty",
		Account:     "0x00000000000000000000000000000000000a11ce",
		Status:      status,
		Payload:     map[string]string{"price": "1.5"},
	}
}

func TestNewMemory_genesisEntry(t *testing.T) {
	j := journal.NewMemory()

	n, err := j.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 genesis entry, got %d", n)
	}
	e, err := j.Get(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if e.Method != "genesis" || e.Hash != journal.GenesisHash {
		t.Errorf("unexpected genesis entry: %+v", e)
	}
}

func TestAppend_chainsCorrectly(t *testing.T) {
	j := journal.NewMemory()

	e1, err := j.Append(ctx, rec("0x01", "confirmed"))
	if err != nil {
		t.Fatal(err)
	}
	e2, err := j.Append(ctx, rec("0x02", "failed"))
	if err != nil {
		t.Fatal(err)
	}
	if e2.PrevHash != e1.Hash {
		t.Errorf("chain broken: e2.PrevHash=%q, want %q", e2.PrevHash, e1.Hash)
	}
	if e2.Status != "failed" || e2.TxHash != "0x02" {
		t.Errorf("unexpected entry: %+v", e2)
	}

	root, err := j.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if root != e2.Hash {
		t.Errorf("Root(): got %q, want %q", root, e2.Hash)
	}
	if err := j.Verify(ctx); err != nil {
		t.Errorf("Verify() failed on valid chain: %v", err)
	}
}

func TestGet_returnsCopy(t *testing.T) {
	j := journal.NewMemory()
	_, _ = j.Append(ctx, rec("0x01", "confirmed"))

	e, _ := j.Get(ctx, 1)
	e.Status = "tampered"
	if err := j.Verify(ctx); err != nil {
		t.Errorf("mutating a returned entry must not affect the journal: %v", err)
	}
}

func TestGet_outOfRange(t *testing.T) {
	j := journal.NewMemory()
	if _, err := j.Get(ctx, 5); err == nil {
		t.Error("expected error for out-of-range index")
	}
	if _, err := j.Get(ctx, -1); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestAppend_unmarshalablePayload(t *testing.T) {
	j := journal.NewMemory()
	r := rec("0x01", "confirmed")
	r.Payload = make(chan int)
	if _, err := j.Append(ctx, r); err == nil {
		t.Error("expected marshal error")
	}
	if n, _ := j.Len(ctx); n != 1 {
		t.Errorf("failed append must not add an entry, got %d entries", n)
	}
}
