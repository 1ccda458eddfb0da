package wallet_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/wallet"
)

var ctx = context.Background()

const (
	keyA = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	keyB = "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"
)

func newProvider(t *testing.T, chainID int64) *wallet.KeyProvider {
	t.Helper()
	keys, err := wallet.ParseKeys([]string{keyA, "0x" + keyB})
	if err != nil {
		t.Fatal(err)
	}
	return wallet.NewKeyProvider(chainID, keys...)
}

func TestNetworkName(t *testing.T) {
	tests := []struct {
		id   int64
		want string
	}{
		{1, "Ethereum Mainnet"},
		{11155111, "Sepolia Testnet"},
		{31337, "Localhost"},
		{5, "Chain ID: 5"},
	}
	for _, tc := range tests {
		if got := wallet.NetworkName(tc.id); got != tc.want {
			t.Errorf("NetworkName(%d): got %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestContext_providerAbsent(t *testing.T) {
	c := wallet.New(nil, zap.NewNop())
	if _, err := c.Connect(ctx); !errors.Is(err, wallet.ErrProviderAbsent) {
		t.Errorf("Connect: expected ErrProviderAbsent, got %v", err)
	}
	if _, err := c.CheckConnection(ctx); !errors.Is(err, wallet.ErrProviderAbsent) {
		t.Errorf("CheckConnection: expected ErrProviderAbsent, got %v", err)
	}
	if _, err := c.Require(); !errors.Is(err, wallet.ErrProviderAbsent) {
		t.Errorf("Require: expected ErrProviderAbsent, got %v", err)
	}
}

func TestContext_requireBeforeConnect(t *testing.T) {
	c := wallet.New(newProvider(t, ledger.SupportedNetwork), zap.NewNop())
	if _, err := c.Require(); !errors.Is(err, wallet.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestContext_connectAndRequire(t *testing.T) {
	p := newProvider(t, ledger.SupportedNetwork)
	c := wallet.New(p, zap.NewNop())

	account, err := c.Connect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	key, _ := crypto.HexToECDSA(keyA)
	if want := crypto.PubkeyToAddress(key.PublicKey); account != want {
		t.Errorf("account: got %s, want %s", account.Hex(), want.Hex())
	}

	s, err := c.Require()
	if err != nil {
		t.Fatal(err)
	}
	if s.Account != account || s.Signer == nil || s.ChainID != ledger.SupportedNetwork {
		t.Errorf("unexpected session: %+v", s)
	}

	st := c.State()
	if !st.Connected || st.Network != "Sepolia Testnet" || st.Error != "" {
		t.Errorf("unexpected state: %+v", st)
	}
	if got := c.ShortAddress(); len(got) != 13 {
		t.Errorf("ShortAddress: got %q", got)
	}
}

func TestContext_wrongNetwork(t *testing.T) {
	p := newProvider(t, wallet.ChainMainnet)
	c := wallet.New(p, zap.NewNop())
	if _, err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Require(); !errors.Is(err, wallet.ErrWrongNetwork) {
		t.Errorf("expected ErrWrongNetwork, got %v", err)
	}
	if st := c.State(); st.Error == "" {
		t.Error("expected wrong-network note in state")
	}

	if err := c.SwitchToSupported(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Require(); err != nil {
		t.Errorf("after switching: %v", err)
	}
	if st := c.State(); st.Error != "" {
		t.Errorf("note should clear on supported network, got %q", st.Error)
	}
}

func TestContext_accountChanges(t *testing.T) {
	p := newProvider(t, ledger.SupportedNetwork)
	c := wallet.New(p, zap.NewNop())
	first, err := c.Connect(ctx)
	if err != nil {
		t.Fatal(err)
	}

	keyBPriv, _ := crypto.HexToECDSA(keyB)
	second := crypto.PubkeyToAddress(keyBPriv.PublicKey)
	if err := p.SelectAccount(second); err != nil {
		t.Fatal(err)
	}
	if st := c.State(); st.Account != second.Hex() {
		t.Errorf("account: got %s, want %s (was %s)", st.Account, second.Hex(), first.Hex())
	}

	p.Revoke()
	if c.State().Connected {
		t.Error("empty account list should disconnect")
	}
}

func TestContext_checkConnection(t *testing.T) {
	p := newProvider(t, ledger.SupportedNetwork)
	c := wallet.New(p, zap.NewNop())

	ok, err := c.CheckConnection(ctx)
	if err != nil || ok {
		t.Fatalf("unauthorized provider: got %v, %v", ok, err)
	}

	p.Authorize()
	ok, err = c.CheckConnection(ctx)
	if err != nil || !ok {
		t.Fatalf("authorized provider: got %v, %v", ok, err)
	}
	if !c.State().Connected {
		t.Error("expected connected state")
	}

	p.Disconnect()
	if c.State().Connected {
		t.Error("provider disconnect should clear the connection")
	}
}

func TestContext_noAccounts(t *testing.T) {
	c := wallet.New(wallet.NewKeyProvider(ledger.SupportedNetwork), zap.NewNop())
	if _, err := c.Connect(ctx); !errors.Is(err, wallet.ErrNoAccounts) {
		t.Errorf("expected ErrNoAccounts, got %v", err)
	}
}
