// Package wallet tracks the connected account and network and gates
// mutations on them.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/normalize"
)

var (
	ErrProviderAbsent = errors.New("wallet provider not found")
	ErrNotConnected   = errors.New("wallet not connected")
	ErrWrongNetwork   = errors.New("wrong network: switch to Sepolia")
	ErrNoAccounts     = errors.New("no accounts found")
)

// Well-known chain IDs.
const (
	ChainMainnet   int64 = 1
	ChainSepolia   int64 = 11155111
	ChainLocalhost int64 = 31337
)

// NetworkName returns the display name of a chain ID.
func NetworkName(chainID int64) string {
	switch chainID {
	case ChainMainnet:
		return "Ethereum Mainnet"
	case ChainSepolia:
		return "Sepolia Testnet"
	case ChainLocalhost:
		return "Localhost"
	}
	return "Chain ID: " + strconv.FormatInt(chainID, 10)
}

// State is a snapshot of the connection.
type State struct {
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
	ChainID   int64  `json:"chain_id,omitempty"`
	Network   string `json:"network,omitempty"`
	// Error holds a note for the user, such as a wrong-network warning.
	Error string `json:"error,omitempty"`
}

// Session is what a mutation needs from a verified connection.
type Session struct {
	Account common.Address
	ChainID int64
	Signer  bind.SignerFn
}

// Context is the connection context. A nil Provider is allowed; every
// operation then fails with ErrProviderAbsent.
type Context struct {
	provider Provider
	logger   *zap.Logger

	mu          sync.RWMutex
	connected   bool
	account     common.Address
	chainID     int64
	note        string
	unsubscribe func()
}

// New returns a disconnected Context over provider.
func New(provider Provider, logger *zap.Logger) *Context {
	return &Context{provider: provider, logger: logger}
}

// Connect requests account access and records the first account and the
// selected network.
func (c *Context) Connect(ctx context.Context) (common.Address, error) {
	if c.provider == nil {
		return common.Address{}, ErrProviderAbsent
	}
	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccounts
	}
	chainID, err := c.provider.ChainID(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("read network: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.account = accounts[0]
	c.chainID = chainID
	c.note = networkNote(chainID)
	c.mu.Unlock()

	c.listen()
	c.logger.Info("wallet connected",
		zap.String("account", accounts[0].Hex()),
		zap.Int64("chain_id", chainID),
	)
	return accounts[0], nil
}

// Disconnect clears the connection. Provider notifications keep being
// observed so a later account change can be tracked.
func (c *Context) Disconnect() {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.account = common.Address{}
	c.chainID = 0
	c.note = ""
	c.mu.Unlock()
	if wasConnected {
		c.logger.Info("wallet disconnected")
	}
}

// CheckConnection adopts an already-authorized account without prompting.
// It reports whether a connection was found.
func (c *Context) CheckConnection(ctx context.Context) (bool, error) {
	if c.provider == nil {
		return false, ErrProviderAbsent
	}
	accounts, err := c.provider.Accounts(ctx)
	if err != nil {
		return false, fmt.Errorf("read accounts: %w", err)
	}
	c.listen()
	if len(accounts) == 0 {
		return false, nil
	}
	chainID, err := c.provider.ChainID(ctx)
	if err != nil {
		return false, fmt.Errorf("read network: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.account = accounts[0]
	c.chainID = chainID
	c.note = networkNote(chainID)
	c.mu.Unlock()
	return true, nil
}

// SwitchToSupported asks the provider to select the supported network.
func (c *Context) SwitchToSupported(ctx context.Context) error {
	if c.provider == nil {
		return ErrProviderAbsent
	}
	if err := c.provider.SwitchChain(ctx, ledger.SupportedNetwork); err != nil {
		return fmt.Errorf("switch network: %w", err)
	}
	return nil
}

// State returns the current connection snapshot.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return State{Error: c.note}
	}
	return State{
		Connected: true,
		Account:   c.account.Hex(),
		ChainID:   c.chainID,
		Network:   NetworkName(c.chainID),
		Error:     c.note,
	}
}

// ShortAddress returns the connected account's display form, or "" when
// disconnected.
func (c *Context) ShortAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return ""
	}
	return normalize.ShortAddress(c.account.Hex())
}

// Require checks the mutation preconditions, in order: a provider exists, an
// account is connected, and the supported network is selected. It makes no
// ledger call.
func (c *Context) Require() (Session, error) {
	if c.provider == nil {
		return Session{}, ErrProviderAbsent
	}
	c.mu.RLock()
	connected, account, chainID := c.connected, c.account, c.chainID
	c.mu.RUnlock()

	if !connected {
		return Session{}, ErrNotConnected
	}
	if chainID != ledger.SupportedNetwork {
		return Session{}, fmt.Errorf("%w (current: %s)", ErrWrongNetwork, NetworkName(chainID))
	}
	signer, err := c.provider.SignerFor(account)
	if err != nil {
		return Session{}, fmt.Errorf("signer for %s: %w", account.Hex(), err)
	}
	return Session{Account: account, ChainID: chainID, Signer: signer}, nil
}

// Close stops observing provider notifications.
func (c *Context) Close() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Context) listen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		return
	}
	c.unsubscribe = c.provider.Subscribe(c.handle)
}

func (c *Context) handle(ch Change) {
	switch {
	case ch.Disconnected:
		c.Disconnect()

	case ch.AccountsChanged:
		if len(ch.Accounts) == 0 {
			c.Disconnect()
			return
		}
		c.mu.Lock()
		c.account = ch.Accounts[0]
		c.mu.Unlock()
		c.logger.Info("wallet account changed", zap.String("account", ch.Accounts[0].Hex()))

	case ch.ChainID != 0:
		c.mu.Lock()
		c.chainID = ch.ChainID
		c.note = networkNote(ch.ChainID)
		c.mu.Unlock()
		c.logger.Info("wallet network changed", zap.Int64("chain_id", ch.ChainID))
	}
}

func networkNote(chainID int64) string {
	if chainID == ledger.SupportedNetwork {
		return ""
	}
	return fmt.Sprintf("Wrong network. Please switch to Sepolia (current: %d)", chainID)
}
