package txn

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/events"
	"github.com/jmerrifield20/propchain/internal/journal"
	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/metrics"
	"github.com/jmerrifield20/propchain/internal/normalize"
	"github.com/jmerrifield20/propchain/internal/notify"
	"github.com/jmerrifield20/propchain/internal/wallet"
)

// DefaultExplorerURL is the block explorer used for transaction links.
const DefaultExplorerURL = "https://sepolia.etherscan.io"

// SessionSource supplies a verified connection; *wallet.Context is one.
type SessionSource interface {
	Require() (wallet.Session, error)
}

// Manager submits calls and awaits their settlement.
type Manager struct {
	ledger        ledger.Ledger
	sessions      SessionSource
	parser        *events.Parser
	journal       journal.Journal  // nil = no journal writes
	publisher     notify.Publisher // nil = no notifications
	subjectPrefix string
	explorerURL   string
	logger        *zap.Logger
}

// NewManager creates a Manager. Journal and publisher are off until set.
func NewManager(l ledger.Ledger, sessions SessionSource, parser *events.Parser, logger *zap.Logger) *Manager {
	return &Manager{
		ledger:      l,
		sessions:    sessions,
		parser:      parser,
		explorerURL: DefaultExplorerURL,
		logger:      logger,
	}
}

// SetJournal configures the settlement journal. Set to nil to disable.
func (m *Manager) SetJournal(j journal.Journal) {
	m.journal = j
}

// SetPublisher configures settlement notifications under subjectPrefix.
// Set p to nil to disable.
func (m *Manager) SetPublisher(p notify.Publisher, subjectPrefix string) {
	m.publisher = p
	m.subjectPrefix = subjectPrefix
}

// SetExplorerURL sets the block explorer base URL; empty disables links.
func (m *Manager) SetExplorerURL(url string) {
	m.explorerURL = strings.TrimRight(url, "/")
}

// Submit checks the connection preconditions and sends call. Precondition
// failures return before any ledger call. A rejection predicted by the node
// is returned as *ledger.RejectedError with no transaction sent.
func (m *Manager) Submit(ctx context.Context, call Call) (*Pending, error) {
	session, err := m.sessions.Require()
	if err != nil {
		return nil, err
	}

	p := &Pending{
		ID:     uuid.NewString(),
		From:   session.Account,
		Method: call.Method,
		Value:  call.Value,
		status: StatusIdle,
	}
	hash, err := m.ledger.Submit(ctx, ledger.SubmitRequest{
		From:   session.Account,
		Value:  call.Value,
		Method: call.Method,
		Args:   call.Args,
		Signer: session.Signer,
	})
	metrics.RecordSubmission(call.Method, err)
	if err != nil {
		m.logger.Warn("transaction not submitted",
			zap.String("op", p.ID),
			zap.String("method", call.Method),
			zap.Error(err),
		)
		return nil, err
	}

	p.Ref = hash
	p.SubmittedAt = time.Now()
	p.mu.Lock()
	p.status = StatusSubmitted
	p.mu.Unlock()

	m.logger.Info("transaction submitted",
		zap.String("op", p.ID),
		zap.String("method", call.Method),
		zap.String("tx", hash.Hex()),
		zap.String("from", session.Account.Hex()),
	)
	return p, nil
}

// AwaitSettlement blocks until p is mined or ctx is done. A revert is not an
// error: it returns a failed Settlement carrying the reason. Cancelling ctx
// abandons the wait but not the transaction, which stays submitted.
func (m *Manager) AwaitSettlement(ctx context.Context, p *Pending) (*Settlement, error) {
	if p == nil {
		return nil, errors.New("await settlement: nil pending transaction")
	}
	if s, ok := p.Settlement(); ok {
		return s, nil
	}

	receipt, err := m.ledger.WaitReceipt(ctx, p.Ref)
	if err != nil {
		return nil, fmt.Errorf("await %s: %w", p.Ref.Hex(), err)
	}

	s := m.settlementFrom(p, receipt)
	if receipt.Status == types.ReceiptStatusSuccessful {
		s.Status = StatusConfirmed
		s.Events = m.parser.ParseAll(receipt.Logs)
	} else {
		s.Status = StatusFailed
		reason, rerr := m.ledger.RevertReason(ctx, p.Ref)
		if rerr != nil {
			m.logger.Warn("revert reason lookup failed (non-fatal)",
				zap.String("op", p.ID),
				zap.String("tx", p.Ref.Hex()),
				zap.Error(rerr),
			)
		}
		s.Failure = &Failure{Reason: reason, Message: ledger.UserMessage(reason)}
	}
	p.settle(s)

	metrics.RecordSettlement(p.Method, string(s.Status), time.Since(p.SubmittedAt).Seconds())
	m.logger.Info("transaction settled",
		zap.String("op", p.ID),
		zap.String("method", p.Method),
		zap.String("tx", s.TxHash),
		zap.String("status", string(s.Status)),
		zap.Uint64("block", s.BlockNumber),
	)

	m.appendJournal(ctx, p, s)
	m.publish(ctx, p, s)
	return s, nil
}

// Execute is Submit followed by AwaitSettlement.
func (m *Manager) Execute(ctx context.Context, call Call) (*Pending, *Settlement, error) {
	p, err := m.Submit(ctx, call)
	if err != nil {
		return nil, nil, err
	}
	s, err := m.AwaitSettlement(ctx, p)
	return p, s, err
}

func (m *Manager) settlementFrom(p *Pending, r *types.Receipt) *Settlement {
	s := &Settlement{
		TxHash:  p.Ref.Hex(),
		GasUsed: r.GasUsed,
		Fee:     new(big.Int),
	}
	if r.BlockNumber != nil {
		s.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.BlockHash != (common.Hash{}) {
		s.BlockHash = r.BlockHash.Hex()
	}
	if r.EffectiveGasPrice != nil {
		s.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
		s.Fee.Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
	}
	s.FeeDisplay = normalize.FormatEther(s.Fee)

	total := new(big.Int).Set(s.Fee)
	if p.Value != nil && p.Value.Sign() > 0 {
		s.Value = new(big.Int).Set(p.Value)
		total.Add(total, p.Value)
	}
	s.TotalCost = normalize.FormatEther(total)

	if m.explorerURL != "" {
		s.ExplorerURL = m.explorerURL + "/tx/" + s.TxHash
	}
	return s
}

// appendJournal records the settlement in a non-fatal manner.
func (m *Manager) appendJournal(ctx context.Context, p *Pending, s *Settlement) {
	if m.journal == nil {
		return
	}
	_, err := m.journal.Append(ctx, journal.Record{
		OperationID: p.ID,
		TxHash:      s.TxHash,
		Method:      p.Method,
		Account:     p.From.Hex(),
		Status:      string(s.Status),
		Payload:     s,
	})
	if err != nil {
		m.logger.Error("journal append failed (non-fatal)",
			zap.String("op", p.ID),
			zap.String("tx", s.TxHash),
			zap.Error(err),
		)
		return
	}
	metrics.RecordJournalAppend()
}

// publish sends the settlement notification in a non-fatal manner.
func (m *Manager) publish(ctx context.Context, p *Pending, s *Settlement) {
	if m.publisher == nil {
		return
	}
	n := Notification{
		OperationID: p.ID,
		TxHash:      s.TxHash,
		Method:      p.Method,
		Account:     p.From.Hex(),
		Status:      s.Status,
		BlockNumber: s.BlockNumber,
		Failure:     s.Failure,
	}
	for _, e := range s.Events {
		n.Events = append(n.Events, e.Name)
	}
	err := m.publisher.Publish(ctx, notify.Subject(m.subjectPrefix, string(s.Status)), n)
	metrics.RecordNotification(err == nil)
	if err != nil {
		m.logger.Warn("settlement notification failed (non-fatal)",
			zap.String("op", p.ID),
			zap.String("tx", s.TxHash),
			zap.Error(err),
		)
	}
}
