package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrNotFound is returned when a transaction or receipt is unknown to the ledger.
var ErrNotFound = errors.New("not found")

// Known rejection reasons emitted by the contract or the node.
const (
	ReasonInsufficientFunds = "Insufficient funds"
	ReasonBuyerIsOwner      = "Buyer cannot be the owner"
	ReasonNoSuchProperty    = "Property does not exist"
	ReasonLikeOwnReview     = "Reviewer cannot like their own review"
	ReasonAlreadyLiked      = "You have already liked this review"
	ReasonNotOwner          = "You are not the owner"
	ReasonInvalidRating     = "Rating must be between 1 and 5"
	ReasonInvalidPrice      = "Price must be greater than 0"
	ReasonNoSuchReview      = "Review does not exist"
)

// RejectedError is returned when the ledger refuses a call, either during
// submission (gas estimation reverted) or at execution. Reason is the raw
// reason string when one was available; Message is the user-facing text.
type RejectedError struct {
	Reason  string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return "ledger rejected the call: " + e.Message
	}
	return "ledger rejected the call: " + e.Reason
}

// Rejected builds a RejectedError with the user-facing message for reason.
func Rejected(reason string) *RejectedError {
	return &RejectedError{Reason: reason, Message: UserMessage(reason)}
}

var userMessages = []struct {
	needle  string
	message string
}{
	{"insufficient funds", "Insufficient funds. Check your ETH balance."},
	{"buyer cannot be the owner", "You cannot buy your own property."},
	{"property does not exist", "Property not found or has been removed."},
	{"cannot like their own review", "You cannot like your own review"},
	{"already liked", "You have already liked this review"},
	{"not the owner", "Only the property owner can perform this action"},
	{"rating must be", "Rating must be between 1 and 5"},
	{"review does not exist", "Review not found"},
}

// GenericRejection is the message used when a reason matches no known case.
const GenericRejection = "Transaction was rejected by the network"

// UserMessage maps a raw rejection reason to user-facing text, matching known
// reasons by case-insensitive substring.
func UserMessage(reason string) string {
	lower := strings.ToLower(reason)
	for _, m := range userMessages {
		if strings.Contains(lower, m.needle) {
			return m.message
		}
	}
	return GenericRejection
}

// AsRejected unwraps a RejectedError from err.
func AsRejected(err error) (*RejectedError, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// classify converts node errors that signal a contract revert or a balance
// failure into a RejectedError. Other errors are returned wrapped with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsRejected(err); ok {
		return err
	}
	if reason, ok := revertReason(err); ok {
		return Rejected(reason)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// revertReason extracts the reason from a revert error. JSON-RPC nodes
// attach the ABI-encoded Error(string) payload as error data; when it is
// missing the "execution reverted: <reason>" message text is used.
func revertReason(err error) (string, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if data, ok := de.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(data); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	if i := strings.Index(lower, "execution reverted"); i >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len("execution reverted"):], ":"))
		return reason, true
	}
	if strings.Contains(lower, "insufficient funds") {
		return ReasonInsufficientFunds, true
	}
	return "", false
}
