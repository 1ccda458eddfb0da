package marketplace

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/model"
	"github.com/jmerrifield20/propchain/internal/txn"
)

// MutationResult is the outcome of a state-changing operation.
//
// TxHash is set once the ledger acknowledged the call. Settlement is set once
// it was mined; a mined call that reverted has Success false and the
// operation also returns a *ledger.RejectedError. Refresh reloads the
// snapshot and is never run implicitly.
type MutationResult struct {
	Success    bool                            `json:"success"`
	TxHash     string                          `json:"tx_hash"`
	Settlement *txn.Settlement                 `json:"settlement,omitempty"`
	Refresh    func(ctx context.Context) error `json:"-"`
}

// CreateListing lists a new property owned by the connected account.
func (s *Service) CreateListing(ctx context.Context, in ListingInput, price string) (*MutationResult, error) {
	session, err := s.conn.Require()
	if err != nil {
		return nil, err
	}
	in, err = in.normalized()
	if err != nil {
		return nil, err
	}
	wei, err := parsePrice(price)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, txn.Call{
		Method: ledger.MethodListProperty,
		Args:   []any{session.Account, wei, in.Title, in.Category, in.Image, in.Address, in.Description},
	})
}

// UpdateListing replaces the content of a listing the connected account owns.
func (s *Service) UpdateListing(ctx context.Context, listingID uint64, in ListingInput) (*MutationResult, error) {
	session, err := s.conn.Require()
	if err != nil {
		return nil, err
	}
	in, err = in.normalized()
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, txn.Call{
		Method: ledger.MethodUpdateProperty,
		Args:   []any{session.Account, id(listingID), in.Title, in.Category, in.Image, in.Address, in.Description},
	})
}

// UpdatePrice reprices a listing the connected account owns.
func (s *Service) UpdatePrice(ctx context.Context, listingID uint64, price string) (*MutationResult, error) {
	session, err := s.conn.Require()
	if err != nil {
		return nil, err
	}
	wei, err := parsePrice(price)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, txn.Call{
		Method: ledger.MethodUpdatePrice,
		Args:   []any{session.Account, id(listingID), wei},
	})
}

// PurchaseListing buys a listing for price, attaching it as the call value.
// An empty price uses the listing's price from the current snapshot. Buying
// one's own listing is refused by the ledger and surfaces as a
// *ledger.RejectedError.
func (s *Service) PurchaseListing(ctx context.Context, listingID uint64, price string) (*MutationResult, error) {
	session, err := s.conn.Require()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(price) == "" {
		l, ok := s.cache.Listing(listingID)
		if !ok {
			return nil, invalid("Property not found")
		}
		price = l.Price
	}
	wei, err := parsePrice(price)
	if err != nil {
		return nil, invalid("Invalid property price")
	}
	return s.mutate(ctx, txn.Call{
		Method: ledger.MethodBuyProperty,
		Args:   []any{id(listingID), session.Account},
		Value:  wei,
	})
}

// AddReview rates a listing as the connected account.
func (s *Service) AddReview(ctx context.Context, listingID uint64, rating int, comment string) (*MutationResult, error) {
	session, err := s.conn.Require()
	if err != nil {
		return nil, err
	}
	if !model.ValidRating(rating) {
		return nil, invalid("Rating must be between %d and %d", model.MinRating, model.MaxRating)
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, invalid("Review comment is required")
	}
	return s.mutate(ctx, txn.Call{
		Method: ledger.MethodAddReview,
		Args:   []any{id(listingID), id(uint64(rating)), comment, session.Account},
	})
}

// LikeReview likes the review at reviewIndex of a listing as the connected
// account.
func (s *Service) LikeReview(ctx context.Context, listingID uint64, reviewIndex int) (*MutationResult, error) {
	session, err := s.conn.Require()
	if err != nil {
		return nil, err
	}
	if reviewIndex < 0 {
		return nil, invalid("Invalid review index: %d", reviewIndex)
	}
	return s.mutate(ctx, txn.Call{
		Method: ledger.MethodLikeReview,
		Args:   []any{id(listingID), id(uint64(reviewIndex)), session.Account},
	})
}

// mutate submits call and waits for it to settle. If the wait is abandoned
// the partial result still carries the transaction hash.
func (s *Service) mutate(ctx context.Context, call txn.Call) (*MutationResult, error) {
	p, err := s.txns.Submit(ctx, call)
	if err != nil {
		return nil, err
	}
	res := &MutationResult{TxHash: p.Ref.Hex(), Refresh: s.refresh}

	settlement, err := s.txns.AwaitSettlement(ctx, p)
	if err != nil {
		return res, err
	}
	res.Settlement = settlement
	if !settlement.Confirmed() {
		return res, &ledger.RejectedError{
			Reason:  settlement.Failure.Reason,
			Message: settlement.Failure.Message,
		}
	}
	res.Success = true
	return res, nil
}

func (s *Service) refresh(ctx context.Context) error {
	snap, err := s.cache.RefreshAll(ctx)
	if err != nil {
		s.logger.Warn("post-settlement refresh failed", zap.Error(err))
		return err
	}
	s.logger.Debug("snapshot refreshed after settlement", zap.Int("listings", snap.Len()))
	return nil
}
