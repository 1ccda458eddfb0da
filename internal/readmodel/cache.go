// Package readmodel holds the process-wide snapshot of every listing.
//
// A Snapshot is immutable once published. RefreshAll builds a new one from a
// single bulk read and swaps it in atomically, so readers never observe a
// half-built view and never take a lock.
package readmodel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/metrics"
	"github.com/jmerrifield20/propchain/internal/model"
	"github.com/jmerrifield20/propchain/internal/normalize"
)

// Reader performs read-only ledger calls. ledger.Ledger satisfies it.
type Reader interface {
	Call(ctx context.Context, method string, args ...any) ([]any, error)
}

// Snapshot is every listing in ledger iteration order.
type Snapshot struct {
	Listings    []model.Listing `json:"listings"`
	RefreshedAt time.Time       `json:"refreshed_at"` // zero until the first refresh

	index map[uint64]int
}

func newSnapshot(listings []model.Listing, at time.Time) *Snapshot {
	s := &Snapshot{
		Listings:    listings,
		RefreshedAt: at,
		index:       make(map[uint64]int, len(listings)),
	}
	for i, l := range listings {
		if _, dup := s.index[l.ID]; !dup {
			s.index[l.ID] = i
		}
	}
	return s
}

// Listing looks up a listing by ID.
func (s *Snapshot) Listing(id uint64) (model.Listing, bool) {
	i, ok := s.index[id]
	if !ok {
		return model.Listing{}, false
	}
	return s.Listings[i], true
}

// Len returns the number of listings.
func (s *Snapshot) Len() int { return len(s.Listings) }

// Cache owns the current Snapshot.
type Cache struct {
	reader Reader
	logger *zap.Logger

	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

// New returns a Cache holding an empty snapshot.
func New(reader Reader, logger *zap.Logger) *Cache {
	c := &Cache{reader: reader, logger: logger}
	c.current.Store(newSnapshot(nil, time.Time{}))
	return c
}

// Snapshot returns the current snapshot without blocking.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Listing looks up id in the current snapshot.
func (c *Cache) Listing(id uint64) (model.Listing, bool) {
	return c.Snapshot().Listing(id)
}

// RefreshAll reads every listing, normalizes it and publishes the result.
// Calls made while a refresh is in flight share its result, and with it the
// first caller's context. On error the previous snapshot stays in place.
func (c *Cache) RefreshAll(ctx context.Context) (*Snapshot, error) {
	v, err, shared := c.group.Do("all", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("listing refresh shared with in-flight call")
	}
	return v.(*Snapshot), nil
}

func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	out, err := c.reader.Call(ctx, ledger.MethodGetAllProperties)
	if err != nil {
		metrics.RecordRefresh(0, err)
		return nil, fmt.Errorf("refresh listings: %w", err)
	}
	var listings []model.Listing
	if len(out) > 0 {
		listings = normalize.Listings(out[0])
	}

	snap := newSnapshot(listings, time.Now())
	c.current.Store(snap)
	metrics.RecordRefresh(len(listings), nil)
	c.logger.Debug("listing snapshot refreshed", zap.Int("listings", len(listings)))
	return snap, nil
}
