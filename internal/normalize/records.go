package normalize

import (
	"math/big"

	"github.com/jmerrifield20/propchain/internal/model"
)

// Listing tuple layout as returned by getAllProperties and getUserProperties.
// getProperty returns the first eight of these positionally.
var (
	ListingID          = Field{Name: "productId", Aliases: []string{"id", "propertyId"}, Index: 0}
	ListingOwner       = Field{Name: "owner", Index: 1}
	ListingPrice       = Field{Name: "price", Index: 2}
	ListingTitle       = Field{Name: "propertyTitle", Aliases: []string{"title", "name"}, Index: 3}
	ListingCategory    = Field{Name: "category", Index: 4}
	ListingImage       = Field{Name: "images", Aliases: []string{"image"}, Index: 5}
	ListingAddress     = Field{Name: "propertyAddress", Aliases: []string{"location"}, Index: 6}
	ListingDescription = Field{Name: "description", Index: 7}
	ListingReviewers   = Field{Name: "reviewers", Index: 8}
	ListingReviewIDs   = Field{Name: "reviews", Aliases: []string{"reviewIds"}, Index: 9}
)

// Review tuple layout as returned by getProductReviews and getUserReviews.
var (
	ReviewReviewer  = Field{Name: "reviewer", Index: 0}
	ReviewListingID = Field{Name: "productId", Aliases: []string{"propertyId"}, Index: 1}
	ReviewRating    = Field{Name: "rating", Index: 2}
	ReviewComment   = Field{Name: "comment", Index: 3}
	ReviewLikes     = Field{Name: "likes", Index: 4}
)

// Listing decodes one listing tuple. fallbackID is used when the tuple carries
// no usable identifier: the list position for bulk reads, the requested ID
// for single reads.
func Listing(raw any, fallbackID uint64) model.Listing {
	t := TupleOf(raw)

	price := Resolve(t, ListingPrice, NonNegativeBigInt, (*big.Int)(nil))
	if price == nil {
		price = new(big.Int)
	}
	owner := Resolve(t, ListingOwner, Address, "")

	l := model.Listing{
		ID:          Resolve(t, ListingID, Uint64, fallbackID),
		Owner:       owner,
		ShortOwner:  ShortAddress(owner),
		PriceWei:    price,
		Price:       FormatEther(price),
		Title:       Resolve(t, ListingTitle, String, ""),
		Category:    Resolve(t, ListingCategory, String, ""),
		Description: Resolve(t, ListingDescription, String, ""),
		Address:     Resolve(t, ListingAddress, String, ""),
		Image:       Resolve(t, ListingImage, String, ""),
		Reviewers:   Resolve(t, ListingReviewers, AddressList, nil),
		ReviewIDs:   Resolve(t, ListingReviewIDs, identifierList, nil),
	}
	if l.Title == "" {
		l.Title = model.DefaultTitle
	}
	if l.Category == "" {
		l.Category = model.DefaultCategory
	}
	if l.Reviewers == nil {
		l.Reviewers = []string{}
	}
	if l.ReviewIDs == nil {
		l.ReviewIDs = []string{}
	}
	return l
}

// Listings decodes a list of listing tuples, using each element's position
// as its fallback identifier.
func Listings(raw any) []model.Listing {
	items := Items(raw)
	out := make([]model.Listing, 0, len(items))
	for i, item := range items {
		out = append(out, Listing(item, uint64(i)))
	}
	return out
}

// Review decodes one review tuple at position index of its list.
// listingID is used when the tuple carries no usable listing identifier.
func Review(raw any, index int, listingID uint64) model.Review {
	t := TupleOf(raw)
	reviewer := Resolve(t, ReviewReviewer, Address, "")
	rating := Resolve(t, ReviewRating, Int, 0)
	if rating < 0 {
		rating = 0
	}
	return model.Review{
		Reviewer:      reviewer,
		ShortReviewer: ShortAddress(reviewer),
		ListingID:     Resolve(t, ReviewListingID, Uint64, listingID),
		Rating:        rating,
		Comment:       Resolve(t, ReviewComment, String, ""),
		Likes:         Resolve(t, ReviewLikes, Uint64, 0),
		Index:         index,
	}
}

// Reviews decodes a list of review tuples. listingID is the fallback listing
// identifier for tuples that carry none.
func Reviews(raw any, listingID uint64) []model.Review {
	items := Items(raw)
	out := make([]model.Review, 0, len(items))
	for i, item := range items {
		out = append(out, Review(item, i, listingID))
	}
	return out
}

// identifierList accepts review identifiers given either as strings or as
// integers, rendering integers in decimal.
func identifierList(v any) ([]string, bool) {
	return listOf(v, func(e any) (string, bool) {
		if s, ok := String(e); ok {
			return s, true
		}
		if b, ok := BigInt(e); ok {
			return b.String(), true
		}
		return "", false
	})
}
