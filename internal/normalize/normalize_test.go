package normalize_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jmerrifield20/propchain/internal/model"
	"github.com/jmerrifield20/propchain/internal/normalize"
)

var owner = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestListing_missingFieldsUseDefaults(t *testing.T) {
	l := normalize.Listing([]any{big.NewInt(7), owner, eth(2)}, 99)

	if l.ID != 7 {
		t.Errorf("ID: got %d, want 7", l.ID)
	}
	if l.Owner != owner.Hex() {
		t.Errorf("Owner: got %q, want %q", l.Owner, owner.Hex())
	}
	if l.Price != "2.0" {
		t.Errorf("Price: got %q, want %q", l.Price, "2.0")
	}
	if l.Title != model.DefaultTitle {
		t.Errorf("Title: got %q, want %q", l.Title, model.DefaultTitle)
	}
	if l.Category != model.DefaultCategory {
		t.Errorf("Category: got %q, want %q", l.Category, model.DefaultCategory)
	}
	if l.Description != "" || l.Address != "" || l.Image != "" {
		t.Errorf("expected empty strings, got %+v", l)
	}
	if l.Reviewers == nil || len(l.Reviewers) != 0 {
		t.Errorf("Reviewers: expected empty non-nil list, got %v", l.Reviewers)
	}
	if l.ReviewIDs == nil || len(l.ReviewIDs) != 0 {
		t.Errorf("ReviewIDs: expected empty non-nil list, got %v", l.ReviewIDs)
	}
}

func TestListing_emptyTupleIsAllDefaults(t *testing.T) {
	l := normalize.Listing(nil, 3)
	if l.ID != 3 {
		t.Errorf("ID: got %d, want fallback 3", l.ID)
	}
	if l.Price != "0.0" {
		t.Errorf("Price: got %q, want 0.0", l.Price)
	}
	if l.ShortOwner != "Unknown" {
		t.Errorf("ShortOwner: got %q, want Unknown", l.ShortOwner)
	}
}

func TestListing_namedAccessorWinsOverPosition(t *testing.T) {
	raw := map[string]any{
		"productId":     uint64(4),
		"propertyTitle": "Lake House",
		"category":      "Cabin",
	}
	l := normalize.Listing(raw, 0)
	if l.ID != 4 || l.Title != "Lake House" || l.Category != "Cabin" {
		t.Errorf("unexpected listing: %+v", l)
	}
}

func TestListing_uncoercibleCandidateFallsThrough(t *testing.T) {
	// Neither the named nor the positional candidate coerces, so defaults apply.
	raw := struct {
		ProductID *big.Int `json:"productId"`
		Owner     string   `json:"owner"`
		Price     string   `json:"price"`
	}{big.NewInt(1), "not-an-address", "abc"}

	l := normalize.Listing(raw, 0)
	if l.Owner != "" {
		t.Errorf("Owner: expected default for malformed address, got %q", l.Owner)
	}
	if l.Price != "0.0" {
		t.Errorf("Price: got %q, want 0.0", l.Price)
	}
}

// abiTuple mirrors the anonymous struct go-ethereum's ABI decoder builds for
// a tuple output.
type abiTuple struct {
	ProductId       *big.Int         `json:"productId"`
	Owner           common.Address   `json:"owner"`
	Price           *big.Int         `json:"price"`
	PropertyTitle   string           `json:"propertyTitle"`
	Category        string           `json:"category"`
	Images          string           `json:"images"`
	PropertyAddress string           `json:"propertyAddress"`
	Description     string           `json:"description"`
	Reviewers       []common.Address `json:"reviewers"`
	Reviews         []string         `json:"reviews"`
}

func TestListings_abiStructs(t *testing.T) {
	reviewer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	raw := []abiTuple{
		{
			ProductId: big.NewInt(1), Owner: owner, Price: big.NewInt(1500000000000000000),
			PropertyTitle: "Loft", Category: "Loft", Images: "ipfs://x",
			PropertyAddress: "1 Main St", Description: "sunny",
			Reviewers: []common.Address{reviewer}, Reviews: []string{"great"},
		},
		{ProductId: big.NewInt(2), Owner: owner, Price: big.NewInt(0)},
	}

	got := normalize.Listings(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(got))
	}
	first := got[0]
	if first.Price != "1.5" {
		t.Errorf("Price: got %q, want 1.5", first.Price)
	}
	if first.Image != "ipfs://x" || first.Address != "1 Main St" || first.Description != "sunny" {
		t.Errorf("unexpected string fields: %+v", first)
	}
	if len(first.Reviewers) != 1 || first.Reviewers[0] != reviewer.Hex() {
		t.Errorf("Reviewers: got %v", first.Reviewers)
	}
	if first.ShortOwner != "0x5aAe...eAed" {
		t.Errorf("ShortOwner: got %q", first.ShortOwner)
	}
	if got[1].Title != model.DefaultTitle {
		t.Errorf("second Title: got %q, want default", got[1].Title)
	}
}

func TestReviews_positionalAndIndex(t *testing.T) {
	raw := []any{
		[]any{owner, big.NewInt(3), uint8(5), "great", big.NewInt(2)},
		[]any{owner.Hex(), nil, "x", "meh"},
	}
	got := normalize.Reviews(raw, 3)
	if len(got) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(got))
	}
	if got[0].Rating != 5 || got[0].Likes != 2 || got[0].Index != 0 || got[0].ListingID != 3 {
		t.Errorf("first review: %+v", got[0])
	}
	if got[1].Rating != 0 {
		t.Errorf("second review rating: got %d, want default 0", got[1].Rating)
	}
	if got[1].ListingID != 3 || got[1].Index != 1 || got[1].Comment != "meh" {
		t.Errorf("second review: %+v", got[1])
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		in   *big.Int
		want string
	}{
		{nil, "0.0"},
		{big.NewInt(0), "0.0"},
		{eth(1), "1.0"},
		{big.NewInt(1500000000000000000), "1.5"},
		{big.NewInt(1), "0.000000000000000001"},
		{new(big.Int).Add(eth(12), big.NewInt(250000000000000000)), "12.25"},
	}
	for _, tc := range tests {
		if got := normalize.FormatEther(tc.in); got != tc.want {
			t.Errorf("FormatEther(%v): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseEther(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1.5", "1500000000000000000", false},
		{"0.1", "100000000000000000", false},
		{"2", "2000000000000000000", false},
		{".5", "500000000000000000", false},
		{"1.0000000000000000000", "1000000000000000000", false},
		{"0.0000000000000000001", "", true},
		{"", "", true},
		{"1.2.3", "", true},
		{"abc", "", true},
	}
	for _, tc := range tests {
		got, err := normalize.ParseEther(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseEther(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseEther(%q): %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseEther(%q): got %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestPriceRoundTrip(t *testing.T) {
	for _, s := range []string{"1.5", "0.001", "123456789.123456789123456789", "1.0"} {
		wei, err := normalize.ParseEther(s)
		if err != nil {
			t.Fatalf("ParseEther(%q): %v", s, err)
		}
		if got := normalize.FormatEther(wei); got != s {
			t.Errorf("round trip %q: got %q", s, got)
		}
		back, _ := normalize.ParseEther(normalize.FormatEther(wei))
		if back.Cmp(wei) != 0 {
			t.Errorf("round trip %s: got %s", wei, back)
		}
	}
}

func TestShortAddress(t *testing.T) {
	if got := normalize.ShortAddress(""); got != "Unknown" {
		t.Errorf("empty: got %q", got)
	}
	if got := normalize.ShortAddress("0x1234567890abcdef1234567890abcdef12345678"); got != "0x1234...5678" {
		t.Errorf("got %q", got)
	}
}
