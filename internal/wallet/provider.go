package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Change is a notification from a Provider. Exactly one of the fields is
// meaningful per notification.
type Change struct {
	Accounts        []common.Address // accounts changed; empty means access revoked
	AccountsChanged bool
	ChainID         int64 // chain changed when non-zero
	Disconnected    bool
}

// Provider is the account and network source, the role a browser wallet
// plays for a web client.
type Provider interface {
	// Accounts returns the accounts already authorized, without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts asks for authorization and returns the accounts.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// ChainID returns the selected network.
	ChainID(ctx context.Context) (int64, error)
	// SwitchChain asks the provider to select another network.
	SwitchChain(ctx context.Context, chainID int64) error
	// SignerFor returns a transaction signer for account.
	SignerFor(account common.Address) (bind.SignerFn, error)
	// Subscribe registers fn for change notifications and returns a function
	// that removes it.
	Subscribe(fn func(Change)) (unsubscribe func())
}

// ErrUnknownAccount is returned when a KeyProvider holds no key for an account.
var ErrUnknownAccount = errors.New("unknown account")

// KeyProvider is a Provider backed by in-process private keys. The first key
// is selected initially.
type KeyProvider struct {
	mu         sync.Mutex
	keys       map[common.Address]*ecdsa.PrivateKey
	order      []common.Address
	selected   int
	chainID    int64
	authorized bool
	nextSub    int
	subs       map[int]func(Change)
}

// NewKeyProvider returns a KeyProvider on chainID holding keys.
func NewKeyProvider(chainID int64, keys ...*ecdsa.PrivateKey) *KeyProvider {
	p := &KeyProvider{
		keys:    make(map[common.Address]*ecdsa.PrivateKey, len(keys)),
		chainID: chainID,
		subs:    make(map[int]func(Change)),
	}
	for _, k := range keys {
		addr := crypto.PubkeyToAddress(k.PublicKey)
		if _, dup := p.keys[addr]; dup {
			continue
		}
		p.keys[addr] = k
		p.order = append(p.order, addr)
	}
	return p
}

// ParseKeys decodes hex-encoded secp256k1 private keys, with or without a
// 0x prefix.
func ParseKeys(hexKeys []string) ([]*ecdsa.PrivateKey, error) {
	out := make([]*ecdsa.PrivateKey, 0, len(hexKeys))
	for i, h := range hexKeys {
		h = strings.TrimPrefix(strings.TrimSpace(h), "0x")
		if h == "" {
			continue
		}
		k, err := crypto.HexToECDSA(h)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// Authorize marks the provider's accounts as already authorized, as a
// returning visitor's wallet would be.
func (p *KeyProvider) Authorize() {
	p.mu.Lock()
	p.authorized = true
	p.mu.Unlock()
}

func (p *KeyProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return nil, nil
	}
	return p.accountsLocked(), nil
}

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authorized = true
	return p.accountsLocked(), nil
}

// accountsLocked returns the accounts with the selected one first.
func (p *KeyProvider) accountsLocked() []common.Address {
	if len(p.order) == 0 {
		return []common.Address{}
	}
	out := make([]common.Address, 0, len(p.order))
	out = append(out, p.order[p.selected])
	for i, a := range p.order {
		if i != p.selected {
			out = append(out, a)
		}
	}
	return out
}

func (p *KeyProvider) ChainID(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *KeyProvider) SwitchChain(ctx context.Context, chainID int64) error {
	p.mu.Lock()
	if p.chainID == chainID {
		p.mu.Unlock()
		return nil
	}
	p.chainID = chainID
	p.mu.Unlock()
	p.notify(Change{ChainID: chainID})
	return nil
}

// SelectAccount makes account the selected one and notifies subscribers.
func (p *KeyProvider) SelectAccount(account common.Address) error {
	p.mu.Lock()
	idx := -1
	for i, a := range p.order {
		if a == account {
			idx = i
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	p.selected = idx
	accounts := p.accountsLocked()
	authorized := p.authorized
	p.mu.Unlock()
	if authorized {
		p.notify(Change{Accounts: accounts, AccountsChanged: true})
	}
	return nil
}

// Revoke withdraws authorization; subscribers see an empty account list.
func (p *KeyProvider) Revoke() {
	p.mu.Lock()
	p.authorized = false
	p.mu.Unlock()
	p.notify(Change{Accounts: []common.Address{}, AccountsChanged: true})
}

// Disconnect notifies subscribers that the provider went away.
func (p *KeyProvider) Disconnect() {
	p.notify(Change{Disconnected: true})
}

func (p *KeyProvider) SignerFor(account common.Address) (bind.SignerFn, error) {
	p.mu.Lock()
	key, ok := p.keys[account]
	chainID := p.chainID
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	return opts.Signer, nil
}

func (p *KeyProvider) Subscribe(fn func(Change)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *KeyProvider) notify(c Change) {
	p.mu.Lock()
	fns := make([]func(Change), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
