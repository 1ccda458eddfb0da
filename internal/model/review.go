package model

// MinRating and MaxRating bound a review's rating, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is a rating left by one account on one listing. Reviews are never
// edited or deleted; only the like counter changes.
type Review struct {
	Reviewer      string `json:"reviewer"`
	ShortReviewer string `json:"short_reviewer"`
	ListingID     uint64 `json:"listing_id"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
	Likes         uint64 `json:"likes"`

	// Index is the review's position within its listing's review list and is
	// the handle used by like operations.
	Index int `json:"index"`
}

// ValidRating reports whether r lies within [MinRating, MaxRating].
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}
