// Package model holds the domain records produced by the access layer.
package model

import (
	"math/big"
	"strings"
)

// DefaultTitle and DefaultCategory are substituted when the ledger returns
// an empty or undecodable value for those fields.
const (
	DefaultTitle    = "Untitled Property"
	DefaultCategory = "General"
)

// Categories lists the categories a new listing may be filed under, in
// addition to DefaultCategory.
var Categories = []string{
	"Apartment",
	"House",
	"Villa",
	"Penthouse",
	"Loft",
	"Cabin",
	"Condo",
	"Townhouse",
}

// IsCategory reports whether c is DefaultCategory or one of Categories.
func IsCategory(c string) bool {
	if c == DefaultCategory {
		return true
	}
	for _, known := range Categories {
		if strings.EqualFold(known, c) {
			return true
		}
	}
	return false
}

// Listing is a property offered on the ledger. Exactly one account owns it
// at a time; a sale transfers ownership rather than deleting the record.
type Listing struct {
	ID          uint64   `json:"id"`
	Owner       string   `json:"owner"`
	ShortOwner  string   `json:"short_owner"`
	PriceWei    *big.Int `json:"price_wei"`
	Price       string   `json:"price"` // display decimal, e.g. "1.5"
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	Image       string   `json:"image"`
	Reviewers   []string `json:"reviewers"`
	ReviewIDs   []string `json:"review_ids"`

	// Partial is set when the record was synthesized from a single-property
	// read rather than the bulk listing, so reviewers and review IDs are absent.
	Partial bool `json:"partial,omitempty"`
}

// OwnedBy reports whether account owns the listing, ignoring hex case.
func (l *Listing) OwnedBy(account string) bool {
	return account != "" && strings.EqualFold(l.Owner, account)
}

// ReviewCount returns the number of review identifiers attached to the listing.
func (l *Listing) ReviewCount() int {
	return len(l.ReviewIDs)
}
