// Package ledger is the call interface to the marketplace contract. It is
// consumed as a black box: the contract's storage and access control live on
// chain, and this package only encodes calls, submits transactions, and
// returns raw results for the normalize and events packages to decode.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Ledger is the contract call surface. Implementations must be safe for
// concurrent use.
type Ledger interface {
	// Address returns the contract address logs are emitted from.
	Address() common.Address

	// Call performs a read-only contract call and returns the unpacked
	// outputs in declaration order.
	Call(ctx context.Context, method string, args ...any) ([]any, error)

	// Submit signs and sends a state-changing call, returning once the node
	// has acknowledged it. A call the node predicts will revert is returned
	// as a *RejectedError without being sent.
	Submit(ctx context.Context, req SubmitRequest) (common.Hash, error)

	// WaitReceipt blocks until the transaction is mined or ctx is done.
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// RevertReason returns the reason string of a mined, reverted
	// transaction, or "" when the ledger does not expose one.
	RevertReason(ctx context.Context, hash common.Hash) (string, error)

	// FilterLogs returns the contract's logs matching q. An empty
	// q.Addresses is restricted to the contract address.
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// SubmitRequest describes one state-changing contract call.
type SubmitRequest struct {
	From   common.Address
	Value  *big.Int // wei attached to payable calls; nil for none
	Method string
	Args   []any
	Signer bind.SignerFn
}
