package marketplace

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/model"
	"github.com/jmerrifield20/propchain/internal/normalize"
	"github.com/jmerrifield20/propchain/internal/stats"
)

// NoRatedListings is the message returned when nothing has been reviewed.
const NoRatedListings = "No rated properties yet"

// ListingDetail is one listing with its reviews. Found is false when the
// ledger holds no listing with the requested ID.
type ListingDetail struct {
	Found   bool                `json:"found"`
	Listing model.Listing       `json:"listing"`
	Reviews []model.Review      `json:"reviews"`
	Summary stats.ReviewSummary `json:"review_stats"`
}

// ListingReviews is the review list of one listing.
type ListingReviews struct {
	Found   bool                `json:"found"`
	Reviews []model.Review      `json:"reviews"`
	Summary stats.ReviewSummary `json:"review_stats"`
}

// HighestRated is the top-rated listing. ID is zero and Found false when
// nothing has been rated. When the listing could not be read, ID is set,
// Listing is nil and Message says why.
type HighestRated struct {
	ID      uint64         `json:"id"`
	Found   bool           `json:"found"`
	Listing *model.Listing `json:"listing,omitempty"`
	Message string         `json:"message,omitempty"`
}

// UserListing is an owned listing with its review summary.
type UserListing struct {
	model.Listing
	Summary stats.ReviewSummary `json:"review_stats"`
}

// UserListings is the set of listings one account owns.
type UserListings struct {
	Listings []UserListing     `json:"listings"`
	Stats    stats.UserListings `json:"stats"`
}

// UserReview is a review together with the listing it targets.
type UserReview struct {
	model.Review
	ListingTitle    string `json:"listing_title"`
	ListingCategory string `json:"listing_category"`
	ListingPrice    string `json:"listing_price"`
	ListingOwner    string `json:"listing_owner"`
	ListingImage    string `json:"listing_image"`
}

// UserReviews is the set of reviews one account wrote.
type UserReviews struct {
	Reviews []UserReview      `json:"reviews"`
	Stats   stats.UserReviews `json:"stats"`
}

// FetchAllListings refreshes the snapshot and returns every listing in
// ledger order.
func (s *Service) FetchAllListings(ctx context.Context) ([]model.Listing, error) {
	snap, err := s.cache.RefreshAll(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Listings, nil
}

// FetchListing reads a listing and its reviews concurrently. An unknown ID
// is reported through Found, not as an error.
func (s *Service) FetchListing(ctx context.Context, listingID uint64) (ListingDetail, error) {
	var (
		detail  ListingDetail
		reviews []model.Review
		missing bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := s.cache.RefreshAll(gctx)
		if err != nil {
			return err
		}
		detail.Listing, detail.Found = snap.Listing(listingID)
		return nil
	})
	g.Go(func() error {
		raw, err := s.call(gctx, ledger.MethodGetProductReviews, id(listingID))
		if isMissing(err) {
			missing = true
			return nil
		}
		if err != nil {
			return err
		}
		reviews = normalize.Reviews(raw, listingID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return ListingDetail{}, fmt.Errorf("fetch listing %d: %w", listingID, err)
	}
	if !detail.Found || missing {
		return ListingDetail{Reviews: []model.Review{}}, nil
	}
	detail.Reviews = reviews
	detail.Summary = stats.Summarize(reviews)
	return detail, nil
}

// FetchReviews returns the reviews of a listing in ledger order.
func (s *Service) FetchReviews(ctx context.Context, listingID uint64) (ListingReviews, error) {
	raw, err := s.call(ctx, ledger.MethodGetProductReviews, id(listingID))
	if isMissing(err) {
		return ListingReviews{Reviews: []model.Review{}}, nil
	}
	if err != nil {
		return ListingReviews{}, fmt.Errorf("fetch reviews of %d: %w", listingID, err)
	}
	reviews := normalize.Reviews(raw, listingID)
	return ListingReviews{Found: true, Reviews: reviews, Summary: stats.Summarize(reviews)}, nil
}

// FetchHighestRated returns the listing with the best average rating. It is
// taken from the snapshot when present there; otherwise a single-listing
// read builds a partial record.
func (s *Service) FetchHighestRated(ctx context.Context) (HighestRated, error) {
	raw, err := s.call(ctx, ledger.MethodGetHighestRated)
	if err != nil {
		return HighestRated{}, fmt.Errorf("fetch highest rated: %w", err)
	}
	top, _ := normalize.Uint64(raw)
	if top == 0 {
		return HighestRated{Message: NoRatedListings}, nil
	}

	if l, ok := s.cache.Listing(top); ok {
		return HighestRated{ID: top, Found: true, Listing: &l}, nil
	}
	out, err := s.ledger.Call(ctx, ledger.MethodGetProperty, id(top))
	if err != nil {
		s.logger.Warn("highest rated listing unreadable (non-fatal)",
			zap.Uint64("id", top),
			zap.Error(err),
		)
		return HighestRated{ID: top, Message: fmt.Sprintf("Property #%d could not be loaded", top)}, nil
	}
	l := normalize.Listing(out, top)
	l.Partial = true
	return HighestRated{ID: top, Found: true, Listing: &l}, nil
}

// FetchUserListings returns the listings account owns, each with its review
// summary. A listing whose reviews cannot be read counts as unreviewed.
func (s *Service) FetchUserListings(ctx context.Context, acct string) (UserListings, error) {
	addr, err := account(acct)
	if err != nil {
		return UserListings{}, err
	}
	raw, err := s.call(ctx, ledger.MethodGetUserProperties, addr)
	if err != nil {
		return UserListings{}, fmt.Errorf("fetch listings of %s: %w", addr.Hex(), err)
	}
	listings := normalize.Listings(raw)

	reviews := make([][]model.Review, len(listings))
	var g errgroup.Group
	for i, l := range listings {
		g.Go(func() error {
			rs, err := s.FetchReviews(ctx, l.ID)
			if err != nil {
				s.logger.Warn("listing reviews unreadable (non-fatal)",
					zap.Uint64("id", l.ID),
					zap.Error(err),
				)
				return nil
			}
			reviews[i] = rs.Reviews
			return nil
		})
	}
	_ = g.Wait()

	out := UserListings{Listings: make([]UserListing, len(listings))}
	byID := make(map[uint64][]model.Review, len(listings))
	for i, l := range listings {
		byID[l.ID] = reviews[i]
		out.Listings[i] = UserListing{Listing: l, Summary: stats.Summarize(reviews[i])}
	}
	out.Stats = stats.UserListingStats(addr.Hex(), listings, byID)
	return out, nil
}

// FetchUserReviews returns the reviews account wrote, in ledger order, each
// joined with the listing it targets.
func (s *Service) FetchUserReviews(ctx context.Context, acct string) (UserReviews, error) {
	addr, err := account(acct)
	if err != nil {
		return UserReviews{}, err
	}

	var raw any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, err = s.call(gctx, ledger.MethodGetUserReviews, addr)
		return err
	})
	g.Go(func() error {
		if _, err := s.cache.RefreshAll(gctx); err != nil {
			s.logger.Warn("listing refresh failed (non-fatal)", zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return UserReviews{}, fmt.Errorf("fetch reviews by %s: %w", addr.Hex(), err)
	}

	reviews := normalize.Reviews(raw, 0)
	snap := s.cache.Snapshot()
	out := UserReviews{Reviews: make([]UserReview, len(reviews))}
	for i, r := range reviews {
		ur := UserReview{
			Review:          r,
			ListingTitle:    fmt.Sprintf("Property #%d", r.ListingID),
			ListingCategory: "Unknown",
			ListingPrice:    "0",
			ListingOwner:    "Unknown",
		}
		if l, ok := snap.Listing(r.ListingID); ok {
			ur.ListingTitle = l.Title
			ur.ListingCategory = l.Category
			ur.ListingPrice = l.Price
			ur.ListingOwner = l.Owner
			ur.ListingImage = l.Image
		}
		out.Reviews[i] = ur
	}
	out.Stats = stats.UserReviewStats(addr.Hex(), reviews)
	return out, nil
}

// FetchTotalReviewCount returns the ledger's review counter.
func (s *Service) FetchTotalReviewCount(ctx context.Context) (uint64, error) {
	raw, err := s.call(ctx, ledger.MethodGetTotalReviews)
	if err != nil {
		return 0, fmt.Errorf("fetch total reviews: %w", err)
	}
	n, _ := normalize.Uint64(raw)
	return n, nil
}

// PlatformStats refreshes the snapshot and summarizes it. An unreadable
// review counter is reported as zero.
func (s *Service) PlatformStats(ctx context.Context) (stats.Platform, error) {
	var (
		listings []model.Listing
		total    uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		listings, err = s.FetchAllListings(gctx)
		return err
	})
	g.Go(func() error {
		n, err := s.FetchTotalReviewCount(gctx)
		if err != nil {
			s.logger.Warn("review counter unreadable (non-fatal)", zap.Error(err))
			return nil
		}
		total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return stats.Platform{}, err
	}
	return stats.PlatformStats(listings, total), nil
}

// HasUserReviewed reports whether acct has reviewed the listing.
func (s *Service) HasUserReviewed(ctx context.Context, listingID uint64, acct string) (bool, error) {
	if acct == "" {
		return false, nil
	}
	addr, err := account(acct)
	if err != nil {
		return false, err
	}
	raw, err := s.call(ctx, ledger.MethodGetUserReviews, addr)
	if err != nil {
		return false, fmt.Errorf("fetch reviews by %s: %w", addr.Hex(), err)
	}
	for _, r := range normalize.Reviews(raw, 0) {
		if r.ListingID == listingID {
			return true, nil
		}
	}
	return false, nil
}

// ListingExists reports whether the ledger holds a listing with the ID.
func (s *Service) ListingExists(ctx context.Context, listingID uint64) (bool, error) {
	if listingID == 0 {
		return false, nil
	}
	_, err := s.ledger.Call(ctx, ledger.MethodGetProperty, id(listingID))
	if isMissing(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check listing %d: %w", listingID, err)
	}
	return true, nil
}
