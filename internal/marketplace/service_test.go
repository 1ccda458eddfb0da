package marketplace_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/events"
	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/marketplace"
	"github.com/jmerrifield20/propchain/internal/model"
	"github.com/jmerrifield20/propchain/internal/wallet"
)

var (
	ctx      = context.Background()
	contract = common.HexToAddress(ledger.DefaultContractAddress)
)

const (
	keyA = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	keyB = "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"
)

type fixture struct {
	ledger   *ledger.MemoryLedger
	provider *wallet.KeyProvider
	svc      *marketplace.Service
	alice    common.Address
	bob      common.Address
}

func newFixture(t *testing.T, chainID int64, autoMine bool) *fixture {
	t.Helper()
	keys, err := wallet.ParseKeys([]string{keyA, keyB})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		ledger:   ledger.NewMemoryLedger(contract, autoMine, zap.NewNop()),
		provider: wallet.NewKeyProvider(chainID, keys...),
		alice:    crypto.PubkeyToAddress(keys[0].PublicKey),
		bob:      crypto.PubkeyToAddress(keys[1].PublicKey),
	}
	conn := wallet.New(f.provider, zap.NewNop())
	t.Cleanup(conn.Close)
	if _, err := conn.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	f.svc = marketplace.New(f.ledger, conn, zap.NewNop())
	return f
}

func (f *fixture) as(t *testing.T, a common.Address) {
	t.Helper()
	if err := f.provider.SelectAccount(a); err != nil {
		t.Fatal(err)
	}
}

func villa() marketplace.ListingInput {
	return marketplace.ListingInput{
		Title:       "Sea View Villa",
		Category:    "Villa",
		Image:       "ipfs://villa",
		Address:     "1 Harbour Road",
		Description: "Four bedrooms facing the sea",
	}
}

func (f *fixture) create(t *testing.T, price string) {
	t.Helper()
	res, err := f.svc.CreateListing(ctx, villa(), price)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if !res.Success {
		t.Fatalf("CreateListing did not succeed: %+v", res)
	}
}

func (f *fixture) review(t *testing.T, listingID uint64, rating int) {
	t.Helper()
	if _, err := f.svc.AddReview(ctx, listingID, rating, "fine place"); err != nil {
		t.Fatalf("AddReview: %v", err)
	}
}

func TestMutations_wrongNetworkMakesNoLedgerCall(t *testing.T) {
	f := newFixture(t, wallet.ChainMainnet, true)

	_, err := f.svc.AddReview(ctx, 1, 5, "great")
	if !errors.Is(err, wallet.ErrWrongNetwork) {
		t.Fatalf("expected ErrWrongNetwork, got %v", err)
	}
	if _, err := f.svc.PurchaseListing(ctx, 1, "1.0"); !errors.Is(err, wallet.ErrWrongNetwork) {
		t.Errorf("purchase: expected ErrWrongNetwork, got %v", err)
	}
	if n := f.ledger.Calls(); n != 0 {
		t.Errorf("expected no ledger calls, got %d", n)
	}
}

func TestMutations_validation(t *testing.T) {
	f := newFixture(t, ledger.SupportedNetwork, true)

	noTitle := villa()
	noTitle.Title = "   "
	badCategory := villa()
	badCategory.Category = "Castle"

	tests := []struct {
		name string
		run  func() error
		want string
	}{
		{"missing title", func() error { _, err := f.svc.CreateListing(ctx, noTitle, "1"); return err }, "Property title is required"},
		{"unknown category", func() error { _, err := f.svc.CreateListing(ctx, badCategory, "1"); return err }, "Unknown category: Castle"},
		{"zero price", func() error { _, err := f.svc.CreateListing(ctx, villa(), "0"); return err }, "Valid price is required"},
		{"garbage price", func() error { _, err := f.svc.UpdatePrice(ctx, 1, "abc"); return err }, "Valid price is required"},
		{"rating too high", func() error { _, err := f.svc.AddReview(ctx, 1, 6, "x"); return err }, "Rating must be between 1 and 5"},
		{"empty comment", func() error { _, err := f.svc.AddReview(ctx, 1, 4, " "); return err }, "Review comment is required"},
		{"negative index", func() error { _, err := f.svc.LikeReview(ctx, 1, -1); return err }, "Invalid review index: -1"},
		{"unknown listing price", func() error { _, err := f.svc.PurchaseListing(ctx, 7, ""); return err }, "Property not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var verr *model.ValidationError
			err := tc.run()
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Msg != tc.want {
				t.Errorf("message: got %q, want %q", verr.Msg, tc.want)
			}
		})
	}
	if n := f.ledger.Calls(); n != 0 {
		t.Errorf("validation failures must not reach the ledger, got %d calls", n)
	}
}

func TestCreateAndFetch(t *testing.T) {
	f := newFixture(t, ledger.SupportedNetwork, true)
	res, err := f.svc.CreateListing(ctx, villa(), "1.5")
	if err != nil {
		t.Fatal(err)
	}
	if res.TxHash == "" || res.Settlement == nil || len(res.Settlement.Events) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.svc.Cache().Snapshot().Len() != 0 {
		t.Error("a mutation must not refresh the snapshot by itself")
	}
	if err := res.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if f.svc.Cache().Snapshot().Len() != 1 {
		t.Error("Refresh should load the new listing")
	}

	listings, err := f.svc.FetchAllListings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(listings) != 1 || listings[0].Price != "1.5" || listings[0].Owner != f.alice.Hex() {
		t.Fatalf("unexpected listings: %+v", listings)
	}

	detail, err := f.svc.FetchListing(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !detail.Found || detail.Listing.Title != "Sea View Villa" || len(detail.Reviews) != 0 {
		t.Errorf("unexpected detail: %+v", detail)
	}

	missing, err := f.svc.FetchListing(ctx, 42)
	if err != nil {
		t.Fatalf("not found must not be an error: %v", err)
	}
	if missing.Found {
		t.Error("expected Found == false for unknown listing")
	}

	if ok, _ := f.svc.ListingExists(ctx, 1); !ok {
		t.Error("listing 1 should exist")
	}
	if ok, err := f.svc.ListingExists(ctx, 9); ok || err != nil {
		t.Errorf("listing 9: got %v, %v", ok, err)
	}
}

func TestPurchase_ownListingRejectedWithoutCacheChange(t *testing.T) {
	f := newFixture(t, ledger.SupportedNetwork, true)
	f.create(t, "1.0")
	before, err := f.svc.Cache().RefreshAll(ctx)
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.PurchaseListing(ctx, 1, "")
	rej, ok := ledger.AsRejected(err)
	if !ok {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rej.Message != "You cannot buy your own property." {
		t.Errorf("message: got %q", rej.Message)
	}
	if res != nil {
		t.Errorf("rejected submission should return no result, got %+v", res)
	}
	if f.svc.Cache().Snapshot() != before {
		t.Error("snapshot must not change")
	}
}

func TestPurchase_transfersOwnership(t *testing.T) {
	f := newFixture(t, ledger.SupportedNetwork, true)
	f.create(t, "2.0")
	if _, err := f.svc.FetchAllListings(ctx); err != nil {
		t.Fatal(err)
	}

	f.as(t, f.bob)
	res, err := f.svc.PurchaseListing(ctx, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Settlement.Value.String() != "2000000000000000000" {
		t.Fatalf("unexpected result: %+v", res)
	}
	sold, ok := res.Settlement.Events[0].Payload.(events.Sold)
	if !ok || sold.NewOwner != f.bob.Hex() {
		t.Errorf("unexpected event payload: %+v", res.Settlement.Events[0].Payload)
	}

	if err := res.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	l, _ := f.svc.Cache().Listing(1)
	if l.Owner != f.bob.Hex() {
		t.Errorf("owner after refresh: got %s", l.Owner)
	}
}

func TestPurchase_insufficientFunds(t *testing.T) {
	f := newFixture(t, ledger.SupportedNetwork, true)
	f.create(t, "2.0")

	f.as(t, f.bob)
	_, err := f.svc.PurchaseListing(ctx, 1, "1.0")
	rej, ok := ledger.AsRejected(err)
	if !ok || rej.Message != "Insufficient funds. Check your ETH balance." {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestUpdates_ownerOnly(t *testing.T) {
	f := newFixture(t, ledger.SupportedNetwork, true)
	f.create(t, "1.0")

	if _, err := f.svc.UpdatePrice(ctx, 1, "3.25"); err != nil {
		t.Fatal(err)
	}
	changed := villa()
	changed.Title = "Renovated Villa"
	if _, err := f.svc.UpdateListing(ctx, 1, changed); err != nil {
		t.Fatal(err)
	}
	detail, _ := f.svc.FetchListing(ctx, 1)
	if detail.Listing.Price != "3.25" || detail.Listing.Title != "Renovated Villa" {
		t.Errorf("unexpected listing after update: %+v", detail.Listing)
	}

	f.as(t, f.bob)
	_, err := f.svc.UpdatePrice(ctx, 1, "0.1")
	rej, ok := ledger.AsRejected(err)
	if !ok || rej.Message != "Only the property owner can perform this action" {
		t.Errorf("expected not-owner rejection, got %v", err)
	}
}

func TestReviewsAndStats(t *testing.T) {
	f := newFixture(t, ledger.SupportedNetwork, true)
	f.create(t, "1.0")
	f.create(t, "0.5")

	f.as(t, f.bob)
	f.review(t, 1, 5)
	f.review(t, 1, 4)
	f.review(t, 2, 3)

	reviews, err := f.svc.FetchReviews(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reviews.Found || len(reviews.Reviews) != 2 || reviews.Summary.Average != 4.5 || reviews.Summary.Sum != 9 {
		t.Errorf("unexpected reviews: %+v", reviews)
	}
	if reviews.Reviews[1].Index != 1 || reviews.Reviews[1].Reviewer != f.bob.Hex() {
		t.Errorf("unexpected second review: %+v", reviews.Reviews[1])
	}

	total, err := f.svc.FetchTotalReviewCount(ctx)
	if err != nil || total != 3 {
		t.Errorf("total reviews: got %d, %v", total, err)
	}

	if ok, _ := f.svc.HasUserReviewed(ctx, 2, f.bob.Hex()); !ok {
		t.Error("bob reviewed listing 2")
	}
	if ok, _ := f.svc.HasUserReviewed(ctx, 2, f.alice.Hex()); ok {
		t.Error("alice reviewed nothing")
	}

	byBob, err := f.svc.FetchUserReviews(ctx, f.bob.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if byBob.Stats.TotalReviews != 3 || byBob.Stats.AverageRating != 4 {
		t.Errorf("unexpected user review stats: %+v", byBob.Stats)
	}
	if byBob.Reviews[0].ListingTitle != "Sea View Villa" {
		t.Errorf("review should be joined with its listing: %+v", byBob.Reviews[0])
	}

	owned, err := f.svc.FetchUserListings(ctx, f.alice.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if owned.Stats.TotalListings != 2 || owned.Stats.TotalValue != "1.5" || owned.Stats.TotalReviews != 3 {
		t.Errorf("unexpected user listing stats: %+v", owned.Stats)
	}
	// (4.5 + 3.0) / 2 = 3.75 → 3.8
	if owned.Stats.AverageRating != 3.8 {
		t.Errorf("average of listing averages: got %v", owned.Stats.AverageRating)
	}
	if owned.Listings[0].Summary.Total != 2 {
		t.Errorf("per-listing summary: %+v", owned.Listings[0].Summary)
	}

	p, err := f.svc.PlatformStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalListings != 2 || p.TotalVolume != "1.5" || p.ActiveUsers != 1 || p.TotalReviews != 3 {
		t.Errorf("unexpected platform stats: %+v", p)
	}

	if _, err := f.svc.FetchUserListings(ctx, "not-an-address"); err == nil {
		t.Error("expected error for malformed account")
	}
}

func TestLikeReview_revertAtSettlement(t *testing.T) {
	f := newFixture(t, ledger.SupportedNetwork, false)
	go func() {
		for f.ledger.Pending() == 0 {
			time.Sleep(time.Millisecond)
		}
		f.ledger.Mine()
	}()
	f.create(t, "1.0")
	go func() {
		for f.ledger.Pending() == 0 {
			time.Sleep(time.Millisecond)
		}
		f.ledger.Mine()
	}()
	f.review(t, 1, 5)

	f.as(t, f.bob)
	type outcome struct {
		res *marketplace.MutationResult
		err error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.LikeReview(ctx, 1, 0)
			results <- outcome{res, err}
		}()
	}
	deadline := time.Now().Add(5 * time.Second)
	for f.ledger.Pending() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("likes were not submitted")
		}
		time.Sleep(time.Millisecond)
	}
	f.ledger.Mine()
	wg.Wait()
	close(results)

	var succeeded, reverted int
	for o := range results {
		switch {
		case o.err == nil && o.res.Success:
			succeeded++
		case o.err != nil:
			rej, ok := ledger.AsRejected(o.err)
			if !ok || rej.Reason != ledger.ReasonAlreadyLiked {
				t.Errorf("unexpected error: %v", o.err)
				continue
			}
			if o.res == nil || o.res.Success || o.res.Settlement == nil || o.res.TxHash == "" {
				t.Errorf("reverted like should carry its settlement: %+v", o.res)
				continue
			}
			reverted++
		}
	}
	if succeeded != 1 || reverted != 1 {
		t.Errorf("expected one success and one revert, got %d and %d", succeeded, reverted)
	}

	reviews, _ := f.svc.FetchReviews(ctx, 1)
	if reviews.Reviews[0].Likes != 1 {
		t.Errorf("likes: got %d, want 1", reviews.Reviews[0].Likes)
	}
}

func TestFetchHighestRated(t *testing.T) {
	f := newFixture(t, ledger.SupportedNetwork, true)

	none, err := f.svc.FetchHighestRated(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if none.Found || none.ID != 0 || none.Message != marketplace.NoRatedListings {
		t.Errorf("no reviews: %+v", none)
	}

	f.create(t, "1.0")
	f.create(t, "1.0")
	f.as(t, f.bob)
	f.review(t, 2, 5)

	// Not in the (empty) snapshot: a partial record is built.
	partial, err := f.svc.FetchHighestRated(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !partial.Found || partial.ID != 2 || partial.Listing == nil || !partial.Listing.Partial {
		t.Fatalf("expected partial listing 2, got %+v", partial)
	}
	if partial.Listing.Title != "Sea View Villa" {
		t.Errorf("partial title: got %q", partial.Listing.Title)
	}

	if _, err := f.svc.FetchAllListings(ctx); err != nil {
		t.Fatal(err)
	}
	full, _ := f.svc.FetchHighestRated(ctx)
	if full.Listing == nil || full.Listing.Partial || len(full.Listing.Reviewers) != 1 {
		t.Errorf("expected snapshot listing, got %+v", full.Listing)
	}

	// Neither the snapshot nor the single read can supply it.
	g := newFixture(t, ledger.SupportedNetwork, true)
	g.create(t, "1.0")
	g.as(t, g.bob)
	g.review(t, 1, 4)
	g.ledger.FailCalls(ledger.MethodGetProperty, errors.New("node unavailable"))
	bare, err := g.svc.FetchHighestRated(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if bare.ID != 1 || bare.Found || bare.Listing != nil || bare.Message == "" {
		t.Errorf("expected ID with message only, got %+v", bare)
	}
}

func TestEvents(t *testing.T) {
	f := newFixture(t, ledger.SupportedNetwork, true)
	f.create(t, "1.0")
	f.create(t, "2.0")
	f.as(t, f.bob)
	f.review(t, 1, 4)
	if _, err := f.svc.PurchaseListing(ctx, 2, "2.0"); err != nil {
		t.Fatal(err)
	}

	all, err := f.svc.FetchEvents(ctx, "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(all))
	for i, e := range all {
		names[i] = e.Name
	}
	want := []string{ledger.EventPropertyListed, ledger.EventPropertyListed, ledger.EventReviewAdded, ledger.EventPropertySold}
	if len(names) != len(want) {
		t.Fatalf("events: got %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, names[i], want[i])
		}
	}

	listed, err := f.svc.FetchEvents(ctx, ledger.EventPropertyListed, nil, nil)
	if err != nil || len(listed) != 2 {
		t.Errorf("PropertyListed: got %d, %v", len(listed), err)
	}
	if _, err := f.svc.FetchEvents(ctx, "Bogus", nil, nil); !errors.Is(err, events.ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}

	mine, _ := f.svc.FetchUserEvents(ctx, f.bob.Hex())
	if len(mine) != 2 {
		t.Errorf("bob's events: got %d, want 2", len(mine))
	}
	about, _ := f.svc.FetchListingEvents(ctx, 2)
	if len(about) != 2 {
		t.Errorf("listing 2 events: got %d, want 2", len(about))
	}

	recent, _ := f.svc.FetchRecentEvents(ctx, 3)
	if len(recent) != 3 || recent[0].Name != ledger.EventPropertySold {
		t.Errorf("recent events should be newest first: %+v", recent)
	}
	if recent[0].BlockNumber < recent[1].BlockNumber {
		t.Error("recent events out of order")
	}
}
