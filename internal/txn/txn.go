// Package txn drives state-changing ledger calls from submission to
// settlement.
//
// A call moves idle → submitted → {confirmed, failed}. Both final states are
// terminal and nothing is retried. The manager never touches the read model;
// callers refresh it themselves once a call has settled.
package txn

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jmerrifield20/propchain/internal/events"
)

// Status is the lifecycle state of a call.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Call is one state-changing contract call.
type Call struct {
	Method string
	Args   []any
	Value  *big.Int // wei attached to payable calls; nil for none
}

// Pending is a submitted call awaiting settlement.
type Pending struct {
	ID          string // operation ID correlating log lines and journal entries
	Ref         common.Hash
	From        common.Address
	Method      string
	Value       *big.Int
	SubmittedAt time.Time

	mu         sync.Mutex
	status     Status
	settlement *Settlement
}

// Status returns the current lifecycle state.
func (p *Pending) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Settlement returns the settlement once the call has settled.
func (p *Pending) Settlement() (*Settlement, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settlement, p.settlement != nil
}

func (p *Pending) settle(s *Settlement) {
	p.mu.Lock()
	p.status = s.Status
	p.settlement = s
	p.mu.Unlock()
}

// Failure describes why a mined call reverted.
type Failure struct {
	Reason  string `json:"reason,omitempty"` // raw ledger reason, when available
	Message string `json:"message"`          // user-facing text
}

// Settlement is the outcome of a mined call.
type Settlement struct {
	Status            Status         `json:"status"`
	TxHash            string         `json:"tx_hash"`
	BlockNumber       uint64         `json:"block_number"`
	BlockHash         string         `json:"block_hash"`
	GasUsed           uint64         `json:"gas_used"`
	EffectiveGasPrice *big.Int       `json:"effective_gas_price,omitempty"`
	Fee               *big.Int       `json:"fee"`
	FeeDisplay        string         `json:"fee_display"`
	Value             *big.Int       `json:"value,omitempty"`
	TotalCost         string         `json:"total_cost"` // value plus fee, display decimal
	Events            []events.Event `json:"events,omitempty"`
	Failure           *Failure       `json:"failure,omitempty"`
	ExplorerURL       string         `json:"explorer_url,omitempty"`
}

// Confirmed reports whether the call succeeded.
func (s *Settlement) Confirmed() bool { return s != nil && s.Status == StatusConfirmed }

// Notification is the payload published for each settlement.
type Notification struct {
	OperationID string   `json:"operation_id"`
	TxHash      string   `json:"tx_hash"`
	Method      string   `json:"method"`
	Account     string   `json:"account"`
	Status      Status   `json:"status"`
	BlockNumber uint64   `json:"block_number"`
	Events      []string `json:"events,omitempty"`
	Failure     *Failure `json:"failure,omitempty"`
}
