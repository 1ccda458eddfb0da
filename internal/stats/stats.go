// Package stats derives aggregate figures from listings and reviews.
//
// Every function is pure and recomputes from its inputs. Ratings are averaged
// in integer tenths and rounded half-up, and prices are summed as exact wei,
// so the same inputs always give the same figures.
package stats

import (
	"math/big"
	"strings"

	"github.com/jmerrifield20/propchain/internal/model"
	"github.com/jmerrifield20/propchain/internal/normalize"
)

// divHalfUp returns num/den rounded half-up. Both must be non-negative and
// den positive.
func divHalfUp(num, den int) int {
	return (2*num + den) / (2 * den)
}

// averageTenths is the mean of ratings in tenths, rounded half-up; 0 for none.
func averageTenths(ratings []int) int {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return divHalfUp(10*sum, len(ratings))
}

func fromTenths(t int) float64 { return float64(t) / 10 }

// AverageRating is the mean of ratings rounded half-up to one decimal, or 0
// when there are none.
func AverageRating(ratings []int) float64 {
	return fromTenths(averageTenths(ratings))
}

// ReviewSummary aggregates the reviews of one listing.
type ReviewSummary struct {
	Average float64 `json:"average_rating"`
	Total   int     `json:"total_reviews"`
	Sum     int     `json:"total_rating"`
}

// Summarize computes the ReviewSummary of reviews.
func Summarize(reviews []model.Review) ReviewSummary {
	ratings := make([]int, len(reviews))
	sum := 0
	for i, r := range reviews {
		ratings[i] = r.Rating
		sum += r.Rating
	}
	return ReviewSummary{Average: AverageRating(ratings), Total: len(reviews), Sum: sum}
}

// TotalVolume is the exact sum of listing prices in wei.
func TotalVolume(listings []model.Listing) *big.Int {
	total := new(big.Int)
	for _, l := range listings {
		if l.PriceWei != nil {
			total.Add(total, l.PriceWei)
		}
	}
	return total
}

// UniqueOwners counts distinct owners, ignoring hex case.
func UniqueOwners(listings []model.Listing) int {
	seen := make(map[string]struct{}, len(listings))
	for _, l := range listings {
		seen[strings.ToLower(l.Owner)] = struct{}{}
	}
	return len(seen)
}

// Platform is the marketplace-wide summary.
type Platform struct {
	TotalListings  int      `json:"total_listings"`
	TotalVolumeWei *big.Int `json:"total_volume_wei"`
	TotalVolume    string   `json:"total_volume"`
	ActiveUsers    int      `json:"active_users"`
	TotalReviews   uint64   `json:"total_reviews"`
}

// PlatformStats summarizes listings. totalReviews comes from the ledger's
// own counter.
func PlatformStats(listings []model.Listing, totalReviews uint64) Platform {
	vol := TotalVolume(listings)
	return Platform{
		TotalListings:  len(listings),
		TotalVolumeWei: vol,
		TotalVolume:    normalize.FormatEther(vol),
		ActiveUsers:    UniqueOwners(listings),
		TotalReviews:   totalReviews,
	}
}

// UserListings summarizes the listings an account owns.
type UserListings struct {
	Account        string   `json:"account"`
	ShortAccount   string   `json:"short_account"`
	TotalListings  int      `json:"total_listings"`
	ActiveListings int      `json:"active_listings"` // priced above zero
	TotalValueWei  *big.Int `json:"total_value_wei"`
	TotalValue     string   `json:"total_value"`
	TotalReviews   int      `json:"total_reviews"`
	AverageRating  float64  `json:"average_rating"` // mean of per-listing averages
}

// UserListingStats summarizes listings owned by account. reviews maps a
// listing ID to its reviews; a listing absent from the map counts as
// unreviewed.
func UserListingStats(account string, listings []model.Listing, reviews map[uint64][]model.Review) UserListings {
	vol := TotalVolume(listings)
	out := UserListings{
		Account:       account,
		ShortAccount:  normalize.ShortAddress(account),
		TotalListings: len(listings),
		TotalValueWei: vol,
		TotalValue:    normalize.FormatEther(vol),
	}
	sumTenths := 0
	for _, l := range listings {
		if l.PriceWei != nil && l.PriceWei.Sign() > 0 {
			out.ActiveListings++
		}
		rs := reviews[l.ID]
		out.TotalReviews += len(rs)
		sumTenths += averageTenths(ratingsOf(rs))
	}
	if len(listings) > 0 {
		out.AverageRating = fromTenths(divHalfUp(sumTenths, len(listings)))
	}
	return out
}

// UserReviews summarizes the reviews an account has written.
type UserReviews struct {
	Account       string        `json:"account"`
	ShortAccount  string        `json:"short_account"`
	TotalReviews  int           `json:"total_reviews"`
	TotalLikes    uint64        `json:"total_likes"`
	AverageRating float64       `json:"average_rating"`
	Distribution  map[int]int   `json:"rating_distribution"` // keys 1 through 5
	HighestRated  *model.Review `json:"highest_rated_review,omitempty"`
	MostRecent    *model.Review `json:"most_recent_review,omitempty"`
}

// UserReviewStats summarizes reviews written by account, given in ledger
// order. The highest-rated review is the first with the top rating; the most
// recent is the last one.
func UserReviewStats(account string, reviews []model.Review) UserReviews {
	out := UserReviews{
		Account:       account,
		ShortAccount:  normalize.ShortAddress(account),
		TotalReviews:  len(reviews),
		AverageRating: AverageRating(ratingsOf(reviews)),
		Distribution:  make(map[int]int, model.MaxRating),
	}
	for r := model.MinRating; r <= model.MaxRating; r++ {
		out.Distribution[r] = 0
	}
	for i := range reviews {
		r := reviews[i]
		out.TotalLikes += r.Likes
		if model.ValidRating(r.Rating) {
			out.Distribution[r.Rating]++
		}
		if out.HighestRated == nil || r.Rating > out.HighestRated.Rating {
			out.HighestRated = &reviews[i]
		}
	}
	if len(reviews) > 0 {
		out.MostRecent = &reviews[len(reviews)-1]
	}
	return out
}

func ratingsOf(reviews []model.Review) []int {
	out := make([]int, len(reviews))
	for i, r := range reviews {
		out[i] = r.Rating
	}
	return out
}
