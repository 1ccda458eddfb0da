package marketplace

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/jmerrifield20/propchain/internal/model"
	"github.com/jmerrifield20/propchain/internal/normalize"
)

func invalid(format string, args ...any) *model.ValidationError {
	return &model.ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ListingInput is the editable content of a listing.
type ListingInput struct {
	Title       string
	Category    string // empty means model.DefaultCategory
	Image       string
	Address     string
	Description string
}

// normalized trims every field, applies the default category and checks the
// required fields.
func (in ListingInput) normalized() (ListingInput, error) {
	out := ListingInput{
		Title:       strings.TrimSpace(in.Title),
		Category:    strings.TrimSpace(in.Category),
		Image:       strings.TrimSpace(in.Image),
		Address:     strings.TrimSpace(in.Address),
		Description: strings.TrimSpace(in.Description),
	}
	switch {
	case out.Title == "":
		return out, invalid("Property title is required")
	case out.Description == "":
		return out, invalid("Description is required")
	case out.Address == "":
		return out, invalid("Property address is required")
	}
	if out.Category == "" {
		out.Category = model.DefaultCategory
	}
	if !model.IsCategory(out.Category) {
		return out, invalid("Unknown category: %s", out.Category)
	}
	return out, nil
}

// parsePrice converts a display decimal into a positive wei amount.
func parsePrice(price string) (*big.Int, error) {
	wei, err := normalize.ParseEther(strings.TrimSpace(price))
	if err != nil || wei.Sign() <= 0 {
		return nil, invalid("Valid price is required")
	}
	return wei, nil
}
