// Package marketplace exposes the caller-facing read and mutation operations
// over the marketplace ledger.
//
// Reads go straight to the ledger and normalize what comes back. Mutations
// check the connection, validate input, then run through the transaction
// manager. Neither kind touches the shared snapshot implicitly: a mutation
// result carries a Refresh the caller runs once it wants the new state.
package marketplace

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/events"
	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/readmodel"
	"github.com/jmerrifield20/propchain/internal/txn"
	"github.com/jmerrifield20/propchain/internal/wallet"
)

// Service implements the marketplace operations for one connection context.
type Service struct {
	ledger ledger.Ledger
	conn   *wallet.Context
	parser *events.Parser
	txns   *txn.Manager
	cache  *readmodel.Cache
	logger *zap.Logger
}

// New wires a Service over l. conn may wrap a nil provider, in which case
// reads work and every mutation fails with wallet.ErrProviderAbsent.
func New(l ledger.Ledger, conn *wallet.Context, logger *zap.Logger) *Service {
	parser := events.NewParser(ledger.MustABI(), l.Address(), logger)
	return &Service{
		ledger: l,
		conn:   conn,
		parser: parser,
		txns:   txn.NewManager(l, conn, parser, logger),
		cache:  readmodel.New(l, logger),
		logger: logger,
	}
}

// Transactions returns the transaction manager, for configuring its
// journal, publisher and explorer link.
func (s *Service) Transactions() *txn.Manager { return s.txns }

// Cache returns the listing snapshot cache.
func (s *Service) Cache() *readmodel.Cache { return s.cache }

// Connection returns the connection context.
func (s *Service) Connection() *wallet.Context { return s.conn }

// Parser returns the event parser.
func (s *Service) Parser() *events.Parser { return s.parser }

// id converts a listing ID into its ledger argument.
func id(n uint64) *big.Int { return new(big.Int).SetUint64(n) }

// isMissing reports whether err is the ledger's "no such listing" rejection.
func isMissing(err error) bool {
	rej, ok := ledger.AsRejected(err)
	return ok && rej.Reason == ledger.ReasonNoSuchProperty
}

// call performs a read and returns its first output.
func (s *Service) call(ctx context.Context, method string, args ...any) (any, error) {
	out, err := s.ledger.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New(method + ": empty result")
	}
	return out[0], nil
}

// account parses an account argument, reporting a ValidationError for
// malformed input.
func account(s string) (common.Address, error) {
	a, ok := ledger.ParseAddress(s)
	if !ok {
		return common.Address{}, invalid("Invalid account address: %s", s)
	}
	return a, nil
}
