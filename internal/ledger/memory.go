package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const (
	memBaseGas  = 21000
	memGasPrice = 1_000_000_000 // 1 gwei
)

// MemoryLedger is an in-process simulation of the marketplace contract. Calls
// and logs go through the real ABI encoder, so results have exactly the shapes
// a JSON-RPC node would produce. Submitted transactions are dry-run against a
// copy of the state, as gas estimation would, and executed for real when
// mined. A transaction that passed the dry run can still revert if an earlier
// transaction in the same block changed the state.
type MemoryLedger struct {
	abi     abi.ABI
	address common.Address
	logger  *zap.Logger
	calls   atomic.Int64

	mu       sync.Mutex
	state    *memState
	autoMine bool
	nonce    uint64
	block    uint64
	queue    []*memTx
	known    map[common.Hash]*memTx
	logs     []types.Log
	mined    chan struct{} // closed and replaced whenever a block is mined
	failures map[string]error
}

type memTx struct {
	hash    common.Hash
	from    common.Address
	value   *big.Int
	method  string
	data    []byte
	receipt *types.Receipt
	reason  string
}

// NewMemoryLedger returns a simulated contract at address. When autoMine is
// set every submitted transaction is mined immediately in its own block;
// otherwise transactions wait for Mine.
func NewMemoryLedger(address common.Address, autoMine bool, logger *zap.Logger) *MemoryLedger {
	return &MemoryLedger{
		abi:      MustABI(),
		address:  address,
		logger:   logger,
		state:    newMemState(),
		autoMine: autoMine,
		known:    make(map[common.Hash]*memTx),
		mined:    make(chan struct{}),
		failures: make(map[string]error),
	}
}

// Calls returns the number of ledger operations performed so far.
func (l *MemoryLedger) Calls() int64 { return l.calls.Load() }

// FailCalls makes every subsequent Call to method fail with err until it is
// cleared with a nil err.
func (l *MemoryLedger) FailCalls(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, method)
		return
	}
	l.failures[method] = err
}

// Pending returns the number of submitted transactions not yet mined.
func (l *MemoryLedger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// BlockNumber returns the number of the latest mined block.
func (l *MemoryLedger) BlockNumber() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.block
}

func (l *MemoryLedger) Address() common.Address { return l.address }

func (l *MemoryLedger) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	l.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, ok := l.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("call %s: unknown method", method)
	}
	input, err := l.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	decoded, err := m.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	l.mu.Lock()
	if ferr := l.failures[method]; ferr != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("call %s: %w", method, ferr)
	}
	values, reason := l.state.view(method, decoded)
	l.mu.Unlock()
	if reason != "" {
		return nil, Rejected(reason)
	}

	output, err := m.Outputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("call %s: pack outputs: %w", method, err)
	}
	out, err := l.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("call %s: unpack outputs: %w", method, err)
	}
	return out, nil
}

func (l *MemoryLedger) Submit(ctx context.Context, req SubmitRequest) (common.Hash, error) {
	l.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	m, ok := l.abi.Methods[req.Method]
	if !ok {
		return common.Hash{}, fmt.Errorf("submit %s: unknown method", req.Method)
	}
	if m.IsConstant() {
		return common.Hash{}, fmt.Errorf("submit %s: method is read-only", req.Method)
	}
	data, err := l.abi.Pack(req.Method, req.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submit %s: %w", req.Method, err)
	}
	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	if value.Sign() > 0 && !m.IsPayable() {
		return common.Hash{}, Rejected("non-payable method")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ferr := l.failures[req.Method]; ferr != nil {
		return common.Hash{}, fmt.Errorf("submit %s: %w", req.Method, ferr)
	}
	// Dry run, as gas estimation would.
	if _, reason := l.state.clone().exec(l.abi, req.From, value, req.Method, data); reason != "" {
		return common.Hash{}, Rejected(reason)
	}

	l.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], l.nonce)
	tx := &memTx{
		hash:   crypto.Keccak256Hash(req.From.Bytes(), nonce[:], data),
		from:   req.From,
		value:  value,
		method: req.Method,
		data:   data,
	}
	l.queue = append(l.queue, tx)
	l.known[tx.hash] = tx
	l.logger.Debug("transaction queued", zap.String("method", req.Method), zap.String("tx", tx.hash.Hex()))

	if l.autoMine {
		l.mineLocked()
	}
	return tx.hash, nil
}

// Mine executes every queued transaction in submission order in one new
// block and returns the block number. With nothing queued it is a no-op and
// returns the current block number.
func (l *MemoryLedger) Mine() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return l.block
	}
	l.mineLocked()
	return l.block
}

func (l *MemoryLedger) mineLocked() {
	l.block++
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], l.block)
	blockHash := crypto.Keccak256Hash([]byte("block"), num[:])
	blockNumber := new(big.Int).SetUint64(l.block)

	var logIndex uint
	for i, tx := range l.queue {
		events, reason := l.state.exec(l.abi, tx.from, tx.value, tx.method, tx.data)
		receipt := &types.Receipt{
			Type:              types.DynamicFeeTxType,
			Status:            types.ReceiptStatusSuccessful,
			TxHash:            tx.hash,
			BlockHash:         blockHash,
			BlockNumber:       blockNumber,
			TransactionIndex:  uint(i),
			GasUsed:           memBaseGas + 16*uint64(len(tx.data)),
			EffectiveGasPrice: big.NewInt(memGasPrice),
		}
		if reason != "" {
			receipt.Status = types.ReceiptStatusFailed
			tx.reason = reason
			events = nil
		}
		receipt.CumulativeGasUsed = receipt.GasUsed
		for _, ev := range events {
			lg := &types.Log{
				Address:     l.address,
				Topics:      ev.topics,
				Data:        ev.data,
				BlockNumber: l.block,
				TxHash:      tx.hash,
				TxIndex:     uint(i),
				BlockHash:   blockHash,
				Index:       logIndex,
			}
			logIndex++
			receipt.Logs = append(receipt.Logs, lg)
			l.logs = append(l.logs, *lg)
		}
		tx.receipt = receipt
	}
	l.queue = nil

	close(l.mined)
	l.mined = make(chan struct{})
}

func (l *MemoryLedger) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	l.calls.Add(1)
	for {
		l.mu.Lock()
		tx, ok := l.known[hash]
		if !ok {
			l.mu.Unlock()
			return nil, ErrNotFound
		}
		if tx.receipt != nil {
			r := tx.receipt
			l.mu.Unlock()
			return r, nil
		}
		mined := l.mined
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-mined:
		}
	}
}

func (l *MemoryLedger) RevertReason(ctx context.Context, hash common.Hash) (string, error) {
	l.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.known[hash]
	if !ok || tx.receipt == nil {
		return "", ErrNotFound
	}
	return tx.reason, nil
}

func (l *MemoryLedger) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	l.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addresses := q.Addresses
	if len(addresses) == 0 {
		addresses = []common.Address{l.address}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from := uint64(0)
	if q.FromBlock != nil && q.FromBlock.Sign() > 0 {
		from = q.FromBlock.Uint64()
	}
	to := l.block
	if q.ToBlock != nil && q.ToBlock.Sign() >= 0 && q.ToBlock.Uint64() < to {
		to = q.ToBlock.Uint64()
	}

	var out []types.Log
	for _, lg := range l.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if !containsAddress(addresses, lg.Address) || !matchTopics(q.Topics, lg.Topics) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func containsAddress(set []common.Address, a common.Address) bool {
	for _, s := range set {
		if s == a {
			return true
		}
	}
	return false
}

// matchTopics applies eth_getLogs topic semantics: position i matches when the
// filter's i-th set is empty or contains the log's i-th topic.
func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	if len(filter) > len(topics) {
		return false
	}
	for i, set := range filter {
		if len(set) == 0 {
			continue
		}
		found := false
		for _, h := range set {
			if h == topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ── simulated contract state ─────────────────────────────────────────────────

type memProperty struct {
	id          uint64
	owner       common.Address
	price       *big.Int
	title       string
	category    string
	images      string
	address     string
	description string
	reviewers   []common.Address
	reviews     []string
}

type memReview struct {
	reviewer common.Address
	product  uint64
	rating   uint64
	comment  string
	likes    uint64
	likedBy  map[common.Address]bool
}

type memState struct {
	nextID       uint64
	properties   map[uint64]*memProperty
	order        []uint64
	reviews      map[uint64][]*memReview
	totalReviews uint64
}

type memEvent struct {
	topics []common.Hash
	data   []byte
}

// propertyTuple and reviewTuple match the ABI tuple components by name.
type propertyTuple struct {
	ProductId       *big.Int
	Owner           common.Address
	Price           *big.Int
	PropertyTitle   string
	Category        string
	Images          string
	PropertyAddress string
	Description     string
	Reviewers       []common.Address
	Reviews         []string
}

type reviewTuple struct {
	Reviewer  common.Address
	ProductId *big.Int
	Rating    *big.Int
	Comment   string
	Likes     *big.Int
}

func newMemState() *memState {
	return &memState{
		nextID:     1,
		properties: make(map[uint64]*memProperty),
		reviews:    make(map[uint64][]*memReview),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:       s.nextID,
		properties:   make(map[uint64]*memProperty, len(s.properties)),
		order:        append([]uint64(nil), s.order...),
		reviews:      make(map[uint64][]*memReview, len(s.reviews)),
		totalReviews: s.totalReviews,
	}
	for id, p := range s.properties {
		cp := *p
		cp.price = new(big.Int).Set(p.price)
		cp.reviewers = append([]common.Address(nil), p.reviewers...)
		cp.reviews = append([]string(nil), p.reviews...)
		c.properties[id] = &cp
	}
	for id, rs := range s.reviews {
		out := make([]*memReview, len(rs))
		for i, r := range rs {
			cr := *r
			cr.likedBy = make(map[common.Address]bool, len(r.likedBy))
			for k, v := range r.likedBy {
				cr.likedBy[k] = v
			}
			out[i] = &cr
		}
		c.reviews[id] = out
	}
	return c
}

func (p *memProperty) tuple() propertyTuple {
	reviewers := p.reviewers
	if reviewers == nil {
		reviewers = []common.Address{}
	}
	reviews := p.reviews
	if reviews == nil {
		reviews = []string{}
	}
	return propertyTuple{
		ProductId:       new(big.Int).SetUint64(p.id),
		Owner:           p.owner,
		Price:           new(big.Int).Set(p.price),
		PropertyTitle:   p.title,
		Category:        p.category,
		Images:          p.images,
		PropertyAddress: p.address,
		Description:     p.description,
		Reviewers:       reviewers,
		Reviews:         reviews,
	}
}

func (r *memReview) tuple() reviewTuple {
	return reviewTuple{
		Reviewer:  r.reviewer,
		ProductId: new(big.Int).SetUint64(r.product),
		Rating:    new(big.Int).SetUint64(r.rating),
		Comment:   r.comment,
		Likes:     new(big.Int).SetUint64(r.likes),
	}
}

func (s *memState) lookup(id *big.Int) (*memProperty, bool) {
	if id == nil || !id.IsUint64() {
		return nil, false
	}
	p, ok := s.properties[id.Uint64()]
	return p, ok
}

// view evaluates a read-only method. A non-empty reason means the call
// reverted.
func (s *memState) view(method string, args []any) ([]any, string) {
	switch method {
	case MethodGetAllProperties:
		out := make([]propertyTuple, 0, len(s.order))
		for _, id := range s.order {
			out = append(out, s.properties[id].tuple())
		}
		return []any{out}, ""

	case MethodGetUserProperties:
		user := args[0].(common.Address)
		out := []propertyTuple{}
		for _, id := range s.order {
			if p := s.properties[id]; p.owner == user {
				out = append(out, p.tuple())
			}
		}
		return []any{out}, ""

	case MethodGetProperty:
		p, ok := s.lookup(args[0].(*big.Int))
		if !ok {
			return nil, ReasonNoSuchProperty
		}
		t := p.tuple()
		return []any{t.ProductId, t.Owner, t.Price, t.PropertyTitle, t.Category, t.Images, t.PropertyAddress, t.Description}, ""

	case MethodGetProductReviews:
		p, ok := s.lookup(args[0].(*big.Int))
		if !ok {
			return nil, ReasonNoSuchProperty
		}
		out := []reviewTuple{}
		for _, r := range s.reviews[p.id] {
			out = append(out, r.tuple())
		}
		return []any{out}, ""

	case MethodGetUserReviews:
		user := args[0].(common.Address)
		out := []reviewTuple{}
		for _, id := range s.order {
			for _, r := range s.reviews[id] {
				if r.reviewer == user {
					out = append(out, r.tuple())
				}
			}
		}
		return []any{out}, ""

	case MethodGetHighestRated:
		return []any{new(big.Int).SetUint64(s.highestRated())}, ""

	case MethodGetTotalReviews:
		return []any{new(big.Int).SetUint64(s.totalReviews)}, ""
	}
	return nil, "method is not a view"
}

// highestRated returns the ID with the highest average rating, the lowest ID
// among ties, or 0 when nothing has been reviewed.
func (s *memState) highestRated() uint64 {
	ids := append([]uint64(nil), s.order...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var best uint64
	var bestSum, bestN uint64
	for _, id := range ids {
		rs := s.reviews[id]
		if len(rs) == 0 {
			continue
		}
		var sum uint64
		for _, r := range rs {
			sum += r.rating
		}
		n := uint64(len(rs))
		// sum/n > bestSum/bestN, compared without division
		if best == 0 || sum*bestN > bestSum*n {
			best, bestSum, bestN = id, sum, n
		}
	}
	return best
}

// exec applies a state-changing call. A non-empty reason means the call
// reverted; every check runs before any write, so s is left unchanged.
func (s *memState) exec(a abi.ABI, from common.Address, value *big.Int, method string, data []byte) ([]memEvent, string) {
	m := a.Methods[method]
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, "malformed call data"
	}

	switch method {
	case MethodListProperty:
		owner := args[0].(common.Address)
		price := args[1].(*big.Int)
		if price.Sign() <= 0 {
			return nil, ReasonInvalidPrice
		}
		p := &memProperty{
			id:          s.nextID,
			owner:       owner,
			price:       new(big.Int).Set(price),
			title:       args[2].(string),
			category:    args[3].(string),
			images:      args[4].(string),
			address:     args[5].(string),
			description: args[6].(string),
		}
		s.nextID++
		s.properties[p.id] = p
		s.order = append(s.order, p.id)
		return []memEvent{mustEvent(a, EventPropertyListed, u256(p.id), owner, p.price)}, ""

	case MethodUpdateProperty:
		owner := args[0].(common.Address)
		p, ok := s.lookup(args[1].(*big.Int))
		if !ok {
			return nil, ReasonNoSuchProperty
		}
		if p.owner != owner || from != owner {
			return nil, ReasonNotOwner
		}
		p.title = args[2].(string)
		p.category = args[3].(string)
		p.images = args[4].(string)
		p.address = args[5].(string)
		p.description = args[6].(string)
		return nil, ""

	case MethodUpdatePrice:
		owner := args[0].(common.Address)
		p, ok := s.lookup(args[1].(*big.Int))
		if !ok {
			return nil, ReasonNoSuchProperty
		}
		if p.owner != owner || from != owner {
			return nil, ReasonNotOwner
		}
		price := args[2].(*big.Int)
		if price.Sign() <= 0 {
			return nil, ReasonInvalidPrice
		}
		p.price = new(big.Int).Set(price)
		return nil, ""

	case MethodBuyProperty:
		p, ok := s.lookup(args[0].(*big.Int))
		if !ok {
			return nil, ReasonNoSuchProperty
		}
		buyer := args[1].(common.Address)
		if value.Cmp(p.price) < 0 {
			return nil, ReasonInsufficientFunds
		}
		if buyer == p.owner || from == p.owner {
			return nil, ReasonBuyerIsOwner
		}
		old := p.owner
		p.owner = buyer
		return []memEvent{mustEvent(a, EventPropertySold, u256(p.id), old, buyer, new(big.Int).Set(p.price))}, ""

	case MethodAddReview:
		p, ok := s.lookup(args[0].(*big.Int))
		if !ok {
			return nil, ReasonNoSuchProperty
		}
		rating := args[1].(*big.Int)
		if !rating.IsUint64() || rating.Uint64() < 1 || rating.Uint64() > 5 {
			return nil, ReasonInvalidRating
		}
		comment := args[2].(string)
		user := args[3].(common.Address)
		s.reviews[p.id] = append(s.reviews[p.id], &memReview{
			reviewer: user,
			product:  p.id,
			rating:   rating.Uint64(),
			comment:  comment,
			likedBy:  make(map[common.Address]bool),
		})
		p.reviewers = append(p.reviewers, user)
		p.reviews = append(p.reviews, comment)
		s.totalReviews++
		return []memEvent{mustEvent(a, EventReviewAdded, u256(p.id), user, new(big.Int).Set(rating), comment)}, ""

	case MethodLikeReview:
		p, ok := s.lookup(args[0].(*big.Int))
		if !ok {
			return nil, ReasonNoSuchProperty
		}
		idx := args[1].(*big.Int)
		rs := s.reviews[p.id]
		if !idx.IsUint64() || idx.Uint64() >= uint64(len(rs)) {
			return nil, ReasonNoSuchReview
		}
		user := args[2].(common.Address)
		r := rs[idx.Uint64()]
		if r.reviewer == user {
			return nil, ReasonLikeOwnReview
		}
		if r.likedBy[user] {
			return nil, ReasonAlreadyLiked
		}
		r.likedBy[user] = true
		r.likes++
		return []memEvent{mustEvent(a, EventReviewLiked, u256(p.id), new(big.Int).Set(idx), user, u256(r.likes))}, ""
	}
	return nil, "method is not a mutation"
}

// mustEvent encodes an event log: topic 0 is the event ID, indexed inputs
// follow as topics, and the remaining inputs are ABI-encoded into data.
func mustEvent(a abi.ABI, name string, values ...any) memEvent {
	ev := a.Events[name]
	out := memEvent{topics: []common.Hash{ev.ID}}
	var nonIndexed []any
	for i, in := range ev.Inputs {
		if !in.Indexed {
			nonIndexed = append(nonIndexed, values[i])
			continue
		}
		switch v := values[i].(type) {
		case common.Address:
			out.topics = append(out.topics, common.BytesToHash(v.Bytes()))
		case *big.Int:
			out.topics = append(out.topics, common.BigToHash(v))
		default:
			panic(fmt.Sprintf("ledger: unsupported indexed value %T in %s", v, name))
		}
	}
	data, err := ev.Inputs.NonIndexed().Pack(nonIndexed...)
	if err != nil {
		panic(fmt.Sprintf("ledger: encode %s: %v", name, err))
	}
	out.data = data
	return out
}

func u256(n uint64) *big.Int { return new(big.Int).SetUint64(n) }
