package readmodel_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/readmodel"
)

var (
	ctx      = context.Background()
	contract = common.HexToAddress(ledger.DefaultContractAddress)
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

func seeded(t *testing.T, titles ...string) *ledger.MemoryLedger {
	t.Helper()
	l := ledger.NewMemoryLedger(contract, true, zap.NewNop())
	for _, title := range titles {
		if _, err := l.Submit(ctx, ledger.SubmitRequest{
			From:   alice,
			Method: ledger.MethodListProperty,
			Args:   []any{alice, big.NewInt(1_000), title, "House", "", "", ""},
		}); err != nil {
			t.Fatal(err)
		}
	}
	return l
}

// gatedReader blocks every call until gate is closed.
type gatedReader struct {
	inner readmodel.Reader
	gate  chan struct{}
	calls atomic.Int32
}

func (g *gatedReader) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	g.calls.Add(1)
	<-g.gate
	return g.inner.Call(ctx, method, args...)
}

func TestCache_emptyBeforeRefresh(t *testing.T) {
	c := readmodel.New(seeded(t, "A"), zap.NewNop())
	s := c.Snapshot()
	if s == nil || s.Len() != 0 || !s.RefreshedAt.IsZero() {
		t.Errorf("expected empty snapshot, got %+v", s)
	}
	if _, ok := c.Listing(1); ok {
		t.Error("expected miss before refresh")
	}
}

func TestCache_refreshAll(t *testing.T) {
	c := readmodel.New(seeded(t, "A", "B", "C"), zap.NewNop())

	s, err := c.RefreshAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 listings, got %d", s.Len())
	}
	for i, want := range []string{"A", "B", "C"} {
		if s.Listings[i].Title != want {
			t.Errorf("listing %d: got %q, want %q", i, s.Listings[i].Title, want)
		}
	}
	if c.Snapshot() != s {
		t.Error("RefreshAll should publish the snapshot it returns")
	}
	l, ok := c.Listing(2)
	if !ok || l.Title != "B" {
		t.Errorf("Listing(2): got %+v, %v", l, ok)
	}
	if _, ok := c.Listing(9); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestCache_refreshErrorKeepsPrevious(t *testing.T) {
	l := seeded(t, "A")
	c := readmodel.New(l, zap.NewNop())
	before, err := c.RefreshAll(ctx)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("rpc down")
	l.FailCalls(ledger.MethodGetAllProperties, boom)
	if _, err := c.RefreshAll(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped rpc error, got %v", err)
	}
	if c.Snapshot() != before {
		t.Error("failed refresh must keep the previous snapshot")
	}
}

func TestCache_concurrentRefreshCollapses(t *testing.T) {
	r := &gatedReader{inner: seeded(t, "A", "B"), gate: make(chan struct{})}
	c := readmodel.New(r, zap.NewNop())

	const n = 8
	var wg sync.WaitGroup
	results := make([]*readmodel.Snapshot, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.RefreshAll(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = s
		}(i)
	}

	// Readers never block while a refresh is in flight.
	time.Sleep(50 * time.Millisecond)
	if s := c.Snapshot(); s.Len() != 0 {
		t.Errorf("snapshot replaced before the read finished: %d listings", s.Len())
	}
	close(r.gate)
	wg.Wait()

	if got := r.calls.Load(); got != 1 {
		t.Errorf("expected one ledger read, got %d", got)
	}
	final := c.Snapshot()
	for i, s := range results {
		if s != final {
			t.Errorf("caller %d saw a different snapshot", i)
		}
	}
	if final.Len() != 2 {
		t.Errorf("expected 2 listings, got %d", final.Len())
	}
}
