package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/metrics"
)

// receiptPollInterval is how often WaitReceipt polls the node.
const receiptPollInterval = 2 * time.Second

// EthLedger talks to the contract over JSON-RPC.
type EthLedger struct {
	client   *ethclient.Client
	address  common.Address
	contract *bind.BoundContract
	logger   *zap.Logger
}

// Dial connects to the JSON-RPC endpoint at rpcURL and binds the contract at
// address.
func Dial(ctx context.Context, rpcURL string, address common.Address, logger *zap.Logger) (*EthLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return NewEthLedger(client, address, logger)
}

// NewEthLedger binds the contract at address using an existing client.
func NewEthLedger(client *ethclient.Client, address common.Address, logger *zap.Logger) (*EthLedger, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	return &EthLedger{
		client:   client,
		address:  address,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		logger:   logger,
	}, nil
}

// Client exposes the underlying client, e.g. for chain ID lookups.
func (l *EthLedger) Client() *ethclient.Client { return l.client }

// Close releases the RPC connection.
func (l *EthLedger) Close() { l.client.Close() }

func (l *EthLedger) Address() common.Address { return l.address }

func (l *EthLedger) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	start := time.Now()
	var out []any
	err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
	metrics.RecordLedgerCall(method, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, classify("call "+method, err)
	}
	return out, nil
}

func (l *EthLedger) Submit(ctx context.Context, req SubmitRequest) (common.Hash, error) {
	opts := &bind.TransactOpts{
		From:    req.From,
		Signer:  req.Signer,
		Value:   req.Value,
		Context: ctx,
	}
	tx, err := l.contract.Transact(opts, req.Method, req.Args...)
	if err != nil {
		return common.Hash{}, classify("submit "+req.Method, err)
	}
	l.logger.Debug("transaction sent",
		zap.String("method", req.Method),
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("nonce", tx.Nonce()),
		zap.Uint64("gas", tx.Gas()),
	)
	return tx.Hash(), nil
}

func (l *EthLedger) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			l.logger.Debug("receipt lookup failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RevertReason replays the transaction as a call against the state of the
// parent of the block it was mined in; the node's revert error carries the
// reason.
func (l *EthLedger) RevertReason(ctx context.Context, hash common.Hash) (string, error) {
	tx, _, err := l.client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch tx %s: %w", hash.Hex(), err)
	}
	receipt, err := l.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("fetch receipt %s: %w", hash.Hex(), err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", fmt.Errorf("recover sender: %w", err)
	}

	msg := ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	parent := new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	_, callErr := l.client.CallContract(ctx, msg, parent)
	if callErr == nil {
		return "", nil
	}
	if reason, ok := revertReason(callErr); ok {
		return reason, nil
	}
	return "", fmt.Errorf("replay tx %s: %w", hash.Hex(), callErr)
}

func (l *EthLedger) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if len(q.Addresses) == 0 {
		q.Addresses = []common.Address{l.address}
	}
	logs, err := l.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}
	return logs, nil
}
