package ledger

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// SupportedNetwork is the only chain ID mutations may be submitted on (Sepolia).
const SupportedNetwork int64 = 11155111

// DefaultContractAddress is the deployed marketplace contract on Sepolia.
const DefaultContractAddress = "0x05F3883541C6eb62a961bD914c388D50A783A41a"

// Contract method names.
const (
	MethodListProperty      = "listProperty"
	MethodGetAllProperties  = "getAllProperties"
	MethodBuyProperty       = "buyProperty"
	MethodGetUserProperties = "getUserProperties"
	MethodGetProperty       = "getProperty"
	MethodUpdateProperty    = "updateProperty"
	MethodUpdatePrice       = "updatePrice"
	MethodAddReview         = "addReview"
	MethodGetProductReviews = "getProductReviews"
	MethodGetUserReviews    = "getUserReviews"
	MethodLikeReview        = "likeReview"
	MethodGetHighestRated   = "getHighestRatedProduct"
	MethodGetTotalReviews   = "getTotalReviews"
)

// Contract event names.
const (
	EventPropertyListed = "PropertyListed"
	EventPropertySold   = "PropertySold"
	EventReviewAdded    = "ReviewAdded"
	EventReviewLiked    = "ReviewLiked"
)

const propertyComponents = `[
	{"name":"productId","type":"uint256"},
	{"name":"owner","type":"address"},
	{"name":"price","type":"uint256"},
	{"name":"propertyTitle","type":"string"},
	{"name":"category","type":"string"},
	{"name":"images","type":"string"},
	{"name":"propertyAddress","type":"string"},
	{"name":"description","type":"string"},
	{"name":"reviewers","type":"address[]"},
	{"name":"reviews","type":"string[]"}
]`

const reviewComponents = `[
	{"name":"reviewer","type":"address"},
	{"name":"productId","type":"uint256"},
	{"name":"rating","type":"uint256"},
	{"name":"comment","type":"string"},
	{"name":"likes","type":"uint256"}
]`

// ContractABI is the JSON ABI of the marketplace contract.
var ContractABI = strings.NewReplacer(
	"$PROPERTY", propertyComponents,
	"$REVIEW", reviewComponents,
).Replace(`[
	{"type":"function","name":"listProperty","stateMutability":"nonpayable",
	 "inputs":[{"name":"_owner","type":"address"},{"name":"_price","type":"uint256"},
	           {"name":"_propertyTitle","type":"string"},{"name":"_category","type":"string"},
	           {"name":"_images","type":"string"},{"name":"_propertyAddress","type":"string"},
	           {"name":"_description","type":"string"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getAllProperties","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"tuple[]","components":$PROPERTY}]},
	{"type":"function","name":"buyProperty","stateMutability":"payable",
	 "inputs":[{"name":"_id","type":"uint256"},{"name":"_buyer","type":"address"}],
	 "outputs":[]},
	{"type":"function","name":"getUserProperties","stateMutability":"view",
	 "inputs":[{"name":"_user","type":"address"}],
	 "outputs":[{"name":"","type":"tuple[]","components":$PROPERTY}]},
	{"type":"function","name":"getProperty","stateMutability":"view",
	 "inputs":[{"name":"_id","type":"uint256"}],
	 "outputs":[{"name":"productId","type":"uint256"},{"name":"owner","type":"address"},
	            {"name":"price","type":"uint256"},{"name":"propertyTitle","type":"string"},
	            {"name":"category","type":"string"},{"name":"images","type":"string"},
	            {"name":"propertyAddress","type":"string"},{"name":"description","type":"string"}]},
	{"type":"function","name":"updateProperty","stateMutability":"nonpayable",
	 "inputs":[{"name":"_owner","type":"address"},{"name":"_productId","type":"uint256"},
	           {"name":"_propertyTitle","type":"string"},{"name":"_category","type":"string"},
	           {"name":"_images","type":"string"},{"name":"_propertyAddress","type":"string"},
	           {"name":"_description","type":"string"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"updatePrice","stateMutability":"nonpayable",
	 "inputs":[{"name":"_owner","type":"address"},{"name":"_productId","type":"uint256"},
	           {"name":"_price","type":"uint256"}],
	 "outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"addReview","stateMutability":"nonpayable",
	 "inputs":[{"name":"_productId","type":"uint256"},{"name":"_rating","type":"uint256"},
	           {"name":"_comment","type":"string"},{"name":"_user","type":"address"}],
	 "outputs":[]},
	{"type":"function","name":"getProductReviews","stateMutability":"view",
	 "inputs":[{"name":"_productId","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple[]","components":$REVIEW}]},
	{"type":"function","name":"getUserReviews","stateMutability":"view",
	 "inputs":[{"name":"_user","type":"address"}],
	 "outputs":[{"name":"","type":"tuple[]","components":$REVIEW}]},
	{"type":"function","name":"likeReview","stateMutability":"nonpayable",
	 "inputs":[{"name":"_productId","type":"uint256"},{"name":"_reviewIndex","type":"uint256"},
	           {"name":"_user","type":"address"}],
	 "outputs":[]},
	{"type":"function","name":"getHighestRatedProduct","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getTotalReviews","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"PropertyListed","anonymous":false,
	 "inputs":[{"name":"productId","type":"uint256","indexed":true},
	           {"name":"owner","type":"address","indexed":true},
	           {"name":"price","type":"uint256","indexed":false}]},
	{"type":"event","name":"PropertySold","anonymous":false,
	 "inputs":[{"name":"productId","type":"uint256","indexed":true},
	           {"name":"oldOwner","type":"address","indexed":true},
	           {"name":"newOwner","type":"address","indexed":true},
	           {"name":"price","type":"uint256","indexed":false}]},
	{"type":"event","name":"ReviewAdded","anonymous":false,
	 "inputs":[{"name":"productId","type":"uint256","indexed":true},
	           {"name":"reviewer","type":"address","indexed":true},
	           {"name":"rating","type":"uint256","indexed":false},
	           {"name":"comment","type":"string","indexed":false}]},
	{"type":"event","name":"ReviewLiked","anonymous":false,
	 "inputs":[{"name":"productId","type":"uint256","indexed":true},
	           {"name":"reviewIndex","type":"uint256","indexed":true},
	           {"name":"liker","type":"address","indexed":true},
	           {"name":"likes","type":"uint256","indexed":false}]}
]`)

var (
	parsedOnce sync.Once
	parsedABI  abi.ABI
	parseErr   error
)

// ParsedABI returns ContractABI parsed once per process.
func ParsedABI() (abi.ABI, error) {
	parsedOnce.Do(func() {
		parsedABI, parseErr = abi.JSON(strings.NewReader(ContractABI))
	})
	return parsedABI, parseErr
}

// MustABI is ParsedABI for callers that treat a malformed embedded ABI as a
// programming error.
func MustABI() abi.ABI {
	a, err := ParsedABI()
	if err != nil {
		panic("ledger: embedded contract ABI: " + err.Error())
	}
	return a
}

// ParseAddress validates and parses a hex account or contract address.
func ParseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
