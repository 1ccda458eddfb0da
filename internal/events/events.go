// Package events decodes raw contract logs into typed marketplace events.
package events

import (
	"math/big"
	"strings"
)

// UnknownEventName is the name given to logs that match no declared event or
// fail to decode.
const UnknownEventName = "UnknownEvent"

// Event is one decoded log entry. Unknown events carry only their
// coordinates; Args, Data and Payload are empty.
type Event struct {
	Name        string `json:"name"`
	Known       bool   `json:"known"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
	TxIndex     uint   `json:"tx_index"`
	LogIndex    uint   `json:"log_index"`

	// Args holds the decoded values keyed by ABI input name.
	Args map[string]any `json:"-"`
	// Data holds the display form of each argument: decimal integers and
	// checksummed addresses.
	Data map[string]string `json:"data,omitempty"`
	// Payload is one of Listed, Sold, ReviewAdded or ReviewLiked.
	Payload any `json:"payload,omitempty"`
}

// Listed is emitted when a listing is created.
type Listed struct {
	ListingID uint64   `json:"listing_id"`
	Owner     string   `json:"owner"`
	PriceWei  *big.Int `json:"price_wei"`
	Price     string   `json:"price"`
}

// Sold is emitted when ownership of a listing changes hands.
type Sold struct {
	ListingID uint64   `json:"listing_id"`
	OldOwner  string   `json:"old_owner"`
	NewOwner  string   `json:"new_owner"`
	PriceWei  *big.Int `json:"price_wei"`
	Price     string   `json:"price"`
}

// ReviewAdded is emitted when a review is appended to a listing.
type ReviewAdded struct {
	ListingID uint64 `json:"listing_id"`
	Reviewer  string `json:"reviewer"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// ReviewLiked is emitted when a review's like counter increases.
type ReviewLiked struct {
	ListingID   uint64 `json:"listing_id"`
	ReviewIndex int    `json:"review_index"`
	Liker       string `json:"liker"`
	Likes       uint64 `json:"likes"`
}

// accountKeys are the argument names that hold accounts.
var accountKeys = []string{"owner", "oldOwner", "newOwner", "reviewer", "liker"}

// Involves reports whether account appears in any account argument,
// ignoring hex case.
func (e Event) Involves(account string) bool {
	if account == "" {
		return false
	}
	for _, k := range accountKeys {
		if v, ok := e.Data[k]; ok && strings.EqualFold(v, account) {
			return true
		}
	}
	return false
}

// ListingID returns the listing the event refers to.
func (e Event) ListingID() (uint64, bool) {
	switch p := e.Payload.(type) {
	case Listed:
		return p.ListingID, true
	case Sold:
		return p.ListingID, true
	case ReviewAdded:
		return p.ListingID, true
	case ReviewLiked:
		return p.ListingID, true
	}
	return 0, false
}
