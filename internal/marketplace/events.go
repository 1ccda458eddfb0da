package marketplace

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/jmerrifield20/propchain/internal/events"
)

// DefaultRecentEvents is the number of events FetchRecentEvents returns when
// no limit is given.
const DefaultRecentEvents = 10

// FetchEvents returns contract events in log order. An empty name selects
// every declared event; nil bounds mean genesis and latest.
func (s *Service) FetchEvents(ctx context.Context, name string, fromBlock, toBlock *big.Int) ([]events.Event, error) {
	q, err := s.parser.Query(name, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	logs, err := s.ledger.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	return s.parser.ParseLogs(logs), nil
}

// FetchUserEvents returns every event naming account as owner, buyer,
// seller, reviewer or liker.
func (s *Service) FetchUserEvents(ctx context.Context, acct string) ([]events.Event, error) {
	addr, err := account(acct)
	if err != nil {
		return nil, err
	}
	all, err := s.FetchEvents(ctx, "", nil, nil)
	if err != nil {
		return nil, err
	}
	out := []events.Event{}
	for _, e := range all {
		if e.Involves(addr.Hex()) {
			out = append(out, e)
		}
	}
	return out, nil
}

// FetchListingEvents returns every event about one listing.
func (s *Service) FetchListingEvents(ctx context.Context, listingID uint64) ([]events.Event, error) {
	all, err := s.FetchEvents(ctx, "", nil, nil)
	if err != nil {
		return nil, err
	}
	out := []events.Event{}
	for _, e := range all {
		if id, ok := e.ListingID(); ok && id == listingID {
			out = append(out, e)
		}
	}
	return out, nil
}

// FetchRecentEvents returns at most limit events, newest first. A limit of
// zero or less means DefaultRecentEvents.
func (s *Service) FetchRecentEvents(ctx context.Context, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = DefaultRecentEvents
	}
	all, err := s.FetchEvents(ctx, "", nil, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].BlockNumber != all[j].BlockNumber {
			return all[i].BlockNumber > all[j].BlockNumber
		}
		return all[i].LogIndex > all[j].LogIndex
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
