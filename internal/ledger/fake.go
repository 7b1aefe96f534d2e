package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/escrow"
	"github.com/mailpay-labs/mailpay/internal/domain/lending"
	"github.com/mailpay-labs/mailpay/internal/domain/vesting"
)

type balanceKey struct {
	addr  string
	asset asset.Asset
}

// FakeLedger is an in-memory Gateway that mirrors the hub contract's state
// machine: balances, escrow records, vesting streams and lending pools all
// live in process. Operations take effect at Submit; AwaitConfirmation
// replays the stored outcome. Time is settable so deadline behavior can be
// tested deterministically.
type FakeLedger struct {
	mu sync.Mutex

	now time.Time

	balances map[balanceKey]int64
	escrows  map[int64]*escrow.Escrow
	streams  map[int64]*vesting.Stream
	pools    map[asset.Asset]*lending.Pool
	supplied map[balanceKey]int64
	borrowed map[balanceKey]int64

	confirmations map[Handle]Confirmation
	nextEscrowID  int64
	nextStreamID  int64
	nextTx        int64

	// Injectable transport failures for unknown-outcome tests.
	FailSubmit error
	FailAwait  error
}

// NewFakeLedger builds an empty fake positioned at a fixed point in time.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		now:           time.Unix(1_700_000_000, 0).UTC(),
		balances:      make(map[balanceKey]int64),
		escrows:       make(map[int64]*escrow.Escrow),
		streams:       make(map[int64]*vesting.Stream),
		pools:         make(map[asset.Asset]*lending.Pool),
		supplied:      make(map[balanceKey]int64),
		borrowed:      make(map[balanceKey]int64),
		confirmations: make(map[Handle]Confirmation),
	}
}

// SetNow pins the fake's clock.
func (f *FakeLedger) SetNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}

// Advance moves the fake's clock forward.
func (f *FakeLedger) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Now reports the fake's current time.
func (f *FakeLedger) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// SetBalance seeds an address balance.
func (f *FakeLedger) SetBalance(addr string, a asset.Asset, units int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[balanceKey{addr, a}] = units
}

// Balance reads an address balance without going through the Gateway surface.
func (f *FakeLedger) Balance(addr string, a asset.Asset) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[balanceKey{addr, a}]
}

// GetBalance implements Gateway.
func (f *FakeLedger) GetBalance(_ context.Context, addr string, a asset.Asset) (int64, error) {
	return f.Balance(addr, a), nil
}

// Submit implements Gateway. The operation is applied immediately; contract
// aborts surface as errors here, exactly as a failed simulation would.
func (f *FakeLedger) Submit(_ context.Context, op Operation) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailSubmit != nil {
		return "", f.FailSubmit
	}

	stack, err := f.apply(op)
	if err != nil {
		return "", err
	}

	f.nextTx++
	h := Handle(fmt.Sprintf("0x%064x", f.nextTx))
	f.confirmations[h] = Confirmation{
		TxRef:   string(h),
		Success: true,
		Stack:   stack,
	}
	return h, nil
}

// AwaitConfirmation implements Gateway.
func (f *FakeLedger) AwaitConfirmation(_ context.Context, h Handle) (Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailAwait != nil {
		return Confirmation{}, f.FailAwait
	}
	conf, ok := f.confirmations[h]
	if !ok {
		return Confirmation{}, apperr.Newf(apperr.KindLedger, "unknown transaction %s", h)
	}
	return conf, nil
}

func (f *FakeLedger) apply(op Operation) ([]StackItem, error) {
	switch op.Method {
	case MethodTransfer:
		return f.applyTransfer(op)
	case MethodCreateEscrow:
		return f.applyCreateEscrow(op)
	case MethodReleaseEscrow:
		return f.applyReleaseEscrow(op)
	case MethodCancelEscrow:
		return f.applyCancelEscrow(op)
	case MethodClaimExpiredEscrow:
		return f.applyClaimExpiredEscrow(op)
	case MethodCreateStream:
		return f.applyCreateStream(op)
	case MethodClaimVested:
		return f.applyClaimVested(op)
	case MethodCancelStream:
		return f.applyCancelStream(op)
	case MethodSupply:
		return f.applySupply(op)
	case MethodWithdraw:
		return f.applyWithdraw(op)
	case MethodBorrow:
		return f.applyBorrow(op)
	case MethodRepay:
		return f.applyRepay(op)
	default:
		return nil, apperr.Newf(apperr.KindLedger, "unknown contract method %q", op.Method)
	}
}

func (f *FakeLedger) applyTransfer(op Operation) ([]StackItem, error) {
	recipient := op.Args[0].(string)
	a := asset.Asset(op.Args[1].(string))
	amount := op.Args[2].(int64)

	if err := f.debit(op.Signer, a, amount); err != nil {
		return nil, err
	}
	f.credit(recipient, a, amount)
	return []StackItem{boolItem(true)}, nil
}

func (f *FakeLedger) applyCreateEscrow(op Operation) ([]StackItem, error) {
	variant := op.Args[0].(int64)
	recipient := op.Args[1].(string)
	arbitrator := op.Args[2].(string)
	a := asset.Asset(op.Args[3].(string))
	amount := op.Args[4].(int64)
	release := unixOrZero(op.Args[5].(int64))
	expiry := unixOrZero(op.Args[6].(int64))
	memo := op.Args[7].(string)

	if err := f.debit(op.Signer, a, amount); err != nil {
		return nil, err
	}

	var terms escrow.Terms
	switch variant {
	case 0:
		terms = escrow.StandardTerms{}
	case 1:
		terms = escrow.TimeLockTerms{Release: release, Expiry: expiry}
	case 2:
		terms = escrow.ArbitratedTerms{Arbitrator: arbitrator, Release: release, Expiry: expiry}
	default:
		return nil, apperr.Newf(apperr.KindLedger, "unknown escrow variant %d", variant)
	}

	f.nextEscrowID++
	f.escrows[f.nextEscrowID] = &escrow.Escrow{
		ID:        f.nextEscrowID,
		Sender:    op.Signer,
		Recipient: recipient,
		Amount:    amount,
		Asset:     a,
		Memo:      memo,
		CreatedAt: f.now,
		Terms:     terms,
	}
	return []StackItem{intItem(f.nextEscrowID)}, nil
}

func (f *FakeLedger) applyReleaseEscrow(op Operation) ([]StackItem, error) {
	e, ok := f.escrows[op.Args[0].(int64)]
	if !ok {
		return nil, AbortError(AbortNotFound)
	}
	if e.Finalized() {
		return nil, AbortError(AbortAlreadyFinalized)
	}
	if op.Signer != e.Recipient && op.Signer != e.Arbitrator() {
		return nil, AbortError(AbortNotAuthorized)
	}
	if exp := e.Terms.ExpiryTime(); !exp.IsZero() && !f.now.Before(exp) {
		return nil, AbortError(AbortNotReleasable)
	}
	// Recipients wait out the release time; an arbitrator does not.
	if op.Signer == e.Recipient {
		if rel := e.Terms.ReleaseTime(); !rel.IsZero() && f.now.Before(rel) {
			return nil, AbortError(AbortNotReleasable)
		}
	}

	e.Released = true
	f.credit(e.Recipient, e.Asset, e.Amount)
	return []StackItem{boolItem(true)}, nil
}

func (f *FakeLedger) applyCancelEscrow(op Operation) ([]StackItem, error) {
	e, ok := f.escrows[op.Args[0].(int64)]
	if !ok {
		return nil, AbortError(AbortNotFound)
	}
	if e.Finalized() {
		return nil, AbortError(AbortAlreadyFinalized)
	}
	if op.Signer != e.Sender {
		return nil, AbortError(AbortNotAuthorized)
	}

	e.Cancelled = true
	f.credit(e.Sender, e.Asset, e.Amount)
	return []StackItem{boolItem(true)}, nil
}

func (f *FakeLedger) applyClaimExpiredEscrow(op Operation) ([]StackItem, error) {
	e, ok := f.escrows[op.Args[0].(int64)]
	if !ok {
		return nil, AbortError(AbortNotFound)
	}
	if e.Finalized() {
		return nil, AbortError(AbortAlreadyFinalized)
	}
	exp := e.Terms.ExpiryTime()
	if exp.IsZero() || f.now.Before(exp) {
		return nil, AbortError(AbortNotExpired)
	}

	e.Cancelled = true
	f.credit(e.Sender, e.Asset, e.Amount)
	return []StackItem{boolItem(true)}, nil
}

func (f *FakeLedger) applyCreateStream(op Operation) ([]StackItem, error) {
	recipient := op.Args[0].(string)
	a := asset.Asset(op.Args[1].(string))
	total := op.Args[2].(int64)
	start := unixOrZero(op.Args[3].(int64))
	end := unixOrZero(op.Args[4].(int64))
	cliff := unixOrZero(op.Args[5].(int64))

	if err := f.debit(op.Signer, a, total); err != nil {
		return nil, err
	}

	f.nextStreamID++
	f.streams[f.nextStreamID] = &vesting.Stream{
		ID:        f.nextStreamID,
		Sender:    op.Signer,
		Recipient: recipient,
		Total:     total,
		Asset:     a,
		Start:     start,
		End:       end,
		Cliff:     cliff,
	}
	return []StackItem{intItem(f.nextStreamID)}, nil
}

func (f *FakeLedger) applyClaimVested(op Operation) ([]StackItem, error) {
	s, ok := f.streams[op.Args[0].(int64)]
	if !ok {
		return nil, AbortError(AbortNotFound)
	}
	if op.Signer != s.Recipient {
		return nil, AbortError(AbortNotAuthorized)
	}
	if s.Cancelled {
		return nil, AbortError(AbortStreamCancelled)
	}

	claimable := s.VestedAt(f.now) - s.Claimed
	if claimable <= 0 {
		return nil, AbortError(AbortNothingToClaim)
	}

	s.Claimed += claimable
	f.credit(s.Recipient, s.Asset, claimable)
	return []StackItem{intItem(claimable)}, nil
}

func (f *FakeLedger) applyCancelStream(op Operation) ([]StackItem, error) {
	s, ok := f.streams[op.Args[0].(int64)]
	if !ok {
		return nil, AbortError(AbortNotFound)
	}
	if op.Signer != s.Sender {
		return nil, AbortError(AbortNotAuthorized)
	}
	if s.Cancelled {
		return nil, AbortError(AbortAlreadyFinalized)
	}

	vested := s.VestedAt(f.now)
	owed := vested - s.Claimed
	refund := s.Total - vested

	s.Claimed = vested
	s.Cancelled = true
	if owed > 0 {
		f.credit(s.Recipient, s.Asset, owed)
	}
	if refund > 0 {
		f.credit(s.Sender, s.Asset, refund)
	}
	return []StackItem{intItem(refund)}, nil
}

func (f *FakeLedger) applySupply(op Operation) ([]StackItem, error) {
	a := asset.Asset(op.Args[0].(string))
	amount := op.Args[1].(int64)

	if err := f.debit(op.Signer, a, amount); err != nil {
		return nil, err
	}

	p := f.pool(a)
	p.TotalLiquidity += amount
	p.UpdatedAt = f.now
	f.supplied[balanceKey{op.Signer, a}] += amount
	return []StackItem{boolItem(true)}, nil
}

func (f *FakeLedger) applyWithdraw(op Operation) ([]StackItem, error) {
	a := asset.Asset(op.Args[0].(string))
	amount := op.Args[1].(int64)
	key := balanceKey{op.Signer, a}

	if f.supplied[key] < amount {
		return nil, AbortError(AbortInsufficientBalance)
	}
	p := f.pool(a)
	if p.Available() < amount {
		return nil, AbortError(AbortInsufficientLiquidity)
	}
	if f.borrowed[key] > 0 && !lending.WithinLoanToValue(f.borrowed[key], f.supplied[key]-amount) {
		return nil, AbortError(AbortLoanToValue)
	}

	f.supplied[key] -= amount
	p.TotalLiquidity -= amount
	p.UpdatedAt = f.now
	f.credit(op.Signer, a, amount)
	return []StackItem{boolItem(true)}, nil
}

func (f *FakeLedger) applyBorrow(op Operation) ([]StackItem, error) {
	a := asset.Asset(op.Args[0].(string))
	amount := op.Args[1].(int64)
	key := balanceKey{op.Signer, a}

	p := f.pool(a)
	if p.Available() < amount {
		return nil, AbortError(AbortInsufficientLiquidity)
	}
	if !lending.WithinLoanToValue(f.borrowed[key]+amount, f.supplied[key]) {
		return nil, AbortError(AbortLoanToValue)
	}

	f.borrowed[key] += amount
	p.TotalBorrowed += amount
	p.UpdatedAt = f.now
	f.credit(op.Signer, a, amount)
	return []StackItem{boolItem(true)}, nil
}

func (f *FakeLedger) applyRepay(op Operation) ([]StackItem, error) {
	a := asset.Asset(op.Args[0].(string))
	amount := op.Args[1].(int64)
	key := balanceKey{op.Signer, a}

	owed := f.borrowed[key]
	if owed == 0 {
		return nil, AbortError(AbortNothingToClaim)
	}
	paid := amount
	if paid > owed {
		paid = owed
	}
	if err := f.debit(op.Signer, a, paid); err != nil {
		return nil, err
	}

	f.borrowed[key] -= paid
	p := f.pool(a)
	p.TotalBorrowed -= paid
	p.UpdatedAt = f.now
	return []StackItem{intItem(paid)}, nil
}

// Query implements Gateway for the hub's read methods.
func (f *FakeLedger) Query(_ context.Context, _ string, method string, args []any) ([]StackItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch method {
	case MethodGetEscrow:
		e, ok := f.escrows[args[0].(int64)]
		if !ok {
			return nil, AbortError(AbortNotFound)
		}
		return []StackItem{encodeEscrow(*e)}, nil
	case MethodGetEscrowCount:
		return []StackItem{intItem(f.nextEscrowID)}, nil
	case MethodGetStream:
		s, ok := f.streams[args[0].(int64)]
		if !ok {
			return nil, AbortError(AbortNotFound)
		}
		return []StackItem{encodeStream(*s)}, nil
	case MethodGetStreamCount:
		return []StackItem{intItem(f.nextStreamID)}, nil
	case MethodGetPool:
		a := asset.Asset(args[0].(string))
		return []StackItem{encodePool(*f.pool(a))}, nil
	default:
		return nil, apperr.Newf(apperr.KindLedger, "unknown query method %q", method)
	}
}

func (f *FakeLedger) pool(a asset.Asset) *lending.Pool {
	p, ok := f.pools[a]
	if !ok {
		p = &lending.Pool{Asset: a, SupplyRateBps: 250, BorrowRateBps: 600, UpdatedAt: f.now}
		f.pools[a] = p
	}
	return p
}

func (f *FakeLedger) debit(addr string, a asset.Asset, amount int64) error {
	key := balanceKey{addr, a}
	if f.balances[key] < amount {
		return AbortError(AbortInsufficientBalance)
	}
	f.balances[key] -= amount
	return nil
}

func (f *FakeLedger) credit(addr string, a asset.Asset, amount int64) {
	f.balances[balanceKey{addr, a}] += amount
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Stack item encoders in node wire format, shared by the fake and the
// parser tests.

func intItem(v int64) StackItem {
	raw, _ := json.Marshal(strconv.FormatInt(v, 10))
	return StackItem{Type: "Integer", Value: raw}
}

func boolItem(v bool) StackItem {
	raw, _ := json.Marshal(v)
	return StackItem{Type: "Boolean", Value: raw}
}

func strItem(v string) StackItem {
	raw, _ := json.Marshal(hex.EncodeToString([]byte(v)))
	return StackItem{Type: "ByteString", Value: raw}
}

func arrayItem(items ...StackItem) StackItem {
	raw, _ := json.Marshal(items)
	return StackItem{Type: "Array", Value: raw}
}

func timeItem(t time.Time) StackItem {
	if t.IsZero() {
		return intItem(0)
	}
	return intItem(t.Unix())
}

func variantCode(v escrow.Variant) int64 {
	switch v {
	case escrow.VariantTimeLocked:
		return 1
	case escrow.VariantArbitrated:
		return 2
	default:
		return 0
	}
}

func encodeEscrow(e escrow.Escrow) StackItem {
	return arrayItem(
		intItem(e.ID),
		intItem(variantCode(e.Variant())),
		strItem(e.Sender),
		strItem(e.Recipient),
		strItem(e.Arbitrator()),
		strItem(string(e.Asset)),
		intItem(e.Amount),
		timeItem(e.Terms.ReleaseTime()),
		timeItem(e.Terms.ExpiryTime()),
		boolItem(e.Released),
		boolItem(e.Cancelled),
		strItem(e.Memo),
		timeItem(e.CreatedAt),
	)
}

func encodeStream(s vesting.Stream) StackItem {
	return arrayItem(
		intItem(s.ID),
		strItem(s.Sender),
		strItem(s.Recipient),
		strItem(string(s.Asset)),
		intItem(s.Total),
		intItem(s.Claimed),
		timeItem(s.Start),
		timeItem(s.End),
		timeItem(s.Cliff),
		boolItem(s.Cancelled),
	)
}

func encodePool(p lending.Pool) StackItem {
	return arrayItem(
		strItem(string(p.Asset)),
		intItem(p.TotalLiquidity),
		intItem(p.TotalBorrowed),
		intItem(p.SupplyRateBps),
		intItem(p.BorrowRateBps),
		timeItem(p.UpdatedAt),
	)
}
