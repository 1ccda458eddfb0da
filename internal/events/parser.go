package events

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/normalize"
)

// ErrUnknownEvent is returned by Query for an event name the contract does
// not declare.
var ErrUnknownEvent = errors.New("unknown event name")

// Parser decodes logs emitted by one contract.
type Parser struct {
	abi     abi.ABI
	address common.Address
	logger  *zap.Logger
}

// NewParser returns a Parser for logs from address. Logs from any other
// address decode as unknown events.
func NewParser(contractABI abi.ABI, address common.Address, logger *zap.Logger) *Parser {
	return &Parser{abi: contractABI, address: address, logger: logger}
}

// Parse decodes one log. It never fails: a log that matches no declared
// event, or whose fields do not decode, becomes an unknown event carrying
// only its coordinates.
func (p *Parser) Parse(lg types.Log) Event {
	ev := Event{
		Name:        UnknownEventName,
		TxHash:      lg.TxHash.Hex(),
		BlockNumber: lg.BlockNumber,
		BlockHash:   lg.BlockHash.Hex(),
		TxIndex:     lg.TxIndex,
		LogIndex:    lg.Index,
	}
	if lg.Address != p.address || len(lg.Topics) == 0 {
		return ev
	}
	decl, err := p.abi.EventByID(lg.Topics[0])
	if err != nil {
		return ev
	}

	args := make(map[string]any, len(decl.Inputs))
	if err := decl.Inputs.UnpackIntoMap(args, lg.Data); err != nil {
		p.logger.Debug("log data did not decode", zap.String("event", decl.Name), zap.String("tx", ev.TxHash), zap.Error(err))
		return ev
	}
	var indexed abi.Arguments
	for _, in := range decl.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(lg.Topics)-1 != len(indexed) {
		return ev
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		p.logger.Debug("log topics did not decode", zap.String("event", decl.Name), zap.String("tx", ev.TxHash), zap.Error(err))
		return ev
	}

	payload, ok := typedPayload(decl.Name, args)
	if !ok {
		return ev
	}
	ev.Name = decl.Name
	ev.Known = true
	ev.Args = args
	ev.Data = displayArgs(args)
	ev.Payload = payload
	return ev
}

// ParseAll decodes a batch of logs and returns them in (block, log index)
// order.
func (p *Parser) ParseAll(logs []*types.Log) []Event {
	out := make([]Event, 0, len(logs))
	for _, lg := range logs {
		if lg == nil {
			continue
		}
		out = append(out, p.Parse(*lg))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out
}

// ParseLogs is ParseAll for logs returned by value, as from a filter query.
func (p *Parser) ParseLogs(logs []types.Log) []Event {
	ptrs := make([]*types.Log, len(logs))
	for i := range logs {
		ptrs[i] = &logs[i]
	}
	return p.ParseAll(ptrs)
}

// Query builds a log filter for the named event, or for every declared event
// when name is empty. Nil bounds mean genesis and latest.
func (p *Parser) Query(name string, fromBlock, toBlock *big.Int) (ethereum.FilterQuery, error) {
	q := ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: []common.Address{p.address},
	}
	if name == "" {
		ids := make([]common.Hash, 0, len(p.abi.Events))
		for _, e := range p.abi.Events {
			ids = append(ids, e.ID)
		}
		q.Topics = [][]common.Hash{ids}
		return q, nil
	}
	e, ok := p.abi.Events[name]
	if !ok {
		return ethereum.FilterQuery{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	q.Topics = [][]common.Hash{{e.ID}}
	return q, nil
}

func typedPayload(name string, args map[string]any) (any, bool) {
	t := normalize.TupleOf(args)
	id := normalize.Resolve(t, field("productId"), normalize.Uint64, 0)
	switch name {
	case ledger.EventPropertyListed:
		price := normalize.Resolve(t, field("price"), normalize.NonNegativeBigInt, new(big.Int))
		return Listed{
			ListingID: id,
			Owner:     normalize.Resolve(t, field("owner"), normalize.Address, ""),
			PriceWei:  price,
			Price:     normalize.FormatEther(price),
		}, true
	case ledger.EventPropertySold:
		price := normalize.Resolve(t, field("price"), normalize.NonNegativeBigInt, new(big.Int))
		return Sold{
			ListingID: id,
			OldOwner:  normalize.Resolve(t, field("oldOwner"), normalize.Address, ""),
			NewOwner:  normalize.Resolve(t, field("newOwner"), normalize.Address, ""),
			PriceWei:  price,
			Price:     normalize.FormatEther(price),
		}, true
	case ledger.EventReviewAdded:
		return ReviewAdded{
			ListingID: id,
			Reviewer:  normalize.Resolve(t, field("reviewer"), normalize.Address, ""),
			Rating:    normalize.Resolve(t, field("rating"), normalize.Int, 0),
			Comment:   normalize.Resolve(t, field("comment"), normalize.String, ""),
		}, true
	case ledger.EventReviewLiked:
		return ReviewLiked{
			ListingID:   id,
			ReviewIndex: normalize.Resolve(t, field("reviewIndex"), normalize.Int, 0),
			Liker:       normalize.Resolve(t, field("liker"), normalize.Address, ""),
			Likes:       normalize.Resolve(t, field("likes"), normalize.Uint64, 0),
		}, true
	}
	return nil, false
}

func field(name string) normalize.Field {
	return normalize.Field{Name: name, Index: -1}
}

func displayArgs(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		switch x := v.(type) {
		case *big.Int:
			out[k] = x.String()
		case common.Address:
			out[k] = x.Hex()
		case string:
			out[k] = x
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}
