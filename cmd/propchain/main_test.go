package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/marketplace"
	"github.com/jmerrifield20/propchain/internal/wallet"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1", 1, false},
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range tests {
		got, err := parseID(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseID(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("parseID(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestExplain(t *testing.T) {
	rejected := &ledger.RejectedError{Reason: ledger.ReasonBuyerIsOwner, Message: "You cannot buy your own property"}

	if err := explain(nil, rejected); err.Error() != rejected.Message {
		t.Errorf("rejected before submit: got %q", err)
	}

	res := &marketplace.MutationResult{TxHash: "0xabc"}
	if err := explain(res, rejected); !strings.Contains(err.Error(), "0xabc") {
		t.Errorf("rejected after submit should name the tx: %q", err)
	}

	if err := explain(nil, wallet.ErrNotConnected); !errors.Is(err, wallet.ErrNotConnected) ||
		!strings.Contains(err.Error(), "wallet.private_keys") {
		t.Errorf("not connected: got %q", err)
	}

	if err := explain(res, errors.New("context deadline exceeded")); !strings.Contains(err.Error(), "not settled") {
		t.Errorf("abandoned wait: got %q", err)
	}
}
