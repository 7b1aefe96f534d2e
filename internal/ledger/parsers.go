package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/escrow"
	"github.com/mailpay-labs/mailpay/internal/domain/lending"
	"github.com/mailpay-labs/mailpay/internal/domain/vesting"
)

// ParseArray extracts the elements of an Array or Struct stack item.
func ParseArray(item StackItem) ([]StackItem, error) {
	if item.Type != "Array" && item.Type != "Struct" {
		return nil, fmt.Errorf("expected Array or Struct, got %s", item.Type)
	}
	var items []StackItem
	if err := json.Unmarshal(item.Value, &items); err != nil {
		return nil, fmt.Errorf("unmarshal array: %w", err)
	}
	return items, nil
}

// ParseInteger parses an Integer stack item.
func ParseInteger(item StackItem) (*big.Int, error) {
	if item.Type != "Integer" {
		return nil, fmt.Errorf("expected Integer, got %s", item.Type)
	}
	var value string
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return n, nil
}

// ParseInt64 parses an Integer stack item into an int64.
func ParseInt64(item StackItem) (int64, error) {
	n, err := ParseInteger(item)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("integer %s out of int64 range", n)
	}
	return n.Int64(), nil
}

// ParseBoolean parses a Boolean stack item.
func ParseBoolean(item StackItem) (bool, error) {
	if item.Type != "Boolean" {
		return false, fmt.Errorf("expected Boolean, got %s", item.Type)
	}
	var value bool
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return false, err
	}
	return value, nil
}

// ParseString parses a ByteString or Buffer stack item as UTF-8 text. Null
// parses as the empty string.
func ParseString(item StackItem) (string, error) {
	if item.Type == "Null" {
		return "", nil
	}
	if item.Type != "ByteString" && item.Type != "Buffer" {
		return "", fmt.Errorf("expected ByteString, got %s", item.Type)
	}
	var value string
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// parseUnixTime maps 0 to the zero time; anything else is unix seconds.
func parseUnixTime(item StackItem) (time.Time, error) {
	sec, err := ParseInt64(item)
	if err != nil {
		return time.Time{}, err
	}
	if sec == 0 {
		return time.Time{}, nil
	}
	return time.Unix(sec, 0).UTC(), nil
}

// Escrow record field order in the hub contract.
const escrowRecordLen = 13

// ParseEscrow parses a getEscrow result into the domain form, including the
// variant-specific terms.
func ParseEscrow(item StackItem) (escrow.Escrow, error) {
	items, err := ParseArray(item)
	if err != nil {
		return escrow.Escrow{}, err
	}
	if len(items) < escrowRecordLen {
		return escrow.Escrow{}, fmt.Errorf("escrow record: expected %d items, got %d", escrowRecordLen, len(items))
	}

	id, err := ParseInt64(items[0])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse id: %w", err)
	}
	variant, err := ParseInt64(items[1])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse variant: %w", err)
	}
	sender, err := ParseString(items[2])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse sender: %w", err)
	}
	recipient, err := ParseString(items[3])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse recipient: %w", err)
	}
	arbitrator, err := ParseString(items[4])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse arbitrator: %w", err)
	}
	assetCode, err := ParseString(items[5])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse asset: %w", err)
	}
	a, err := asset.Parse(assetCode)
	if err != nil {
		return escrow.Escrow{}, err
	}
	amount, err := ParseInt64(items[6])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse amount: %w", err)
	}
	release, err := parseUnixTime(items[7])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse release time: %w", err)
	}
	expiry, err := parseUnixTime(items[8])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse expiry time: %w", err)
	}
	released, err := ParseBoolean(items[9])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse released: %w", err)
	}
	cancelled, err := ParseBoolean(items[10])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse cancelled: %w", err)
	}
	memo, err := ParseString(items[11])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse memo: %w", err)
	}
	createdAt, err := parseUnixTime(items[12])
	if err != nil {
		return escrow.Escrow{}, fmt.Errorf("parse created at: %w", err)
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
		return escrow.Escrow{}, fmt.Errorf("unknown escrow variant %d", variant)
	}

	return escrow.Escrow{
		ID:        id,
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Asset:     a,
		Memo:      memo,
		Released:  released,
		Cancelled: cancelled,
		CreatedAt: createdAt,
		Terms:     terms,
	}, nil
}

// Stream record field order in the hub contract.
const streamRecordLen = 10

// ParseStream parses a getStream result into the domain form.
func ParseStream(item StackItem) (vesting.Stream, error) {
	items, err := ParseArray(item)
	if err != nil {
		return vesting.Stream{}, err
	}
	if len(items) < streamRecordLen {
		return vesting.Stream{}, fmt.Errorf("stream record: expected %d items, got %d", streamRecordLen, len(items))
	}

	id, err := ParseInt64(items[0])
	if err != nil {
		return vesting.Stream{}, fmt.Errorf("parse id: %w", err)
	}
	sender, err := ParseString(items[1])
	if err != nil {
		return vesting.Stream{}, fmt.Errorf("parse sender: %w", err)
	}
	recipient, err := ParseString(items[2])
	if err != nil {
		return vesting.Stream{}, fmt.Errorf("parse recipient: %w", err)
	}
	assetCode, err := ParseString(items[3])
	if err != nil {
		return vesting.Stream{}, fmt.Errorf("parse asset: %w", err)
	}
	a, err := asset.Parse(assetCode)
	if err != nil {
		return vesting.Stream{}, err
	}
	total, err := ParseInt64(items[4])
	if err != nil {
		return vesting.Stream{}, fmt.Errorf("parse total: %w", err)
	}
	claimed, err := ParseInt64(items[5])
	if err != nil {
		return vesting.Stream{}, fmt.Errorf("parse claimed: %w", err)
	}
	start, err := parseUnixTime(items[6])
	if err != nil {
		return vesting.Stream{}, fmt.Errorf("parse start: %w", err)
	}
	end, err := parseUnixTime(items[7])
	if err != nil {
		return vesting.Stream{}, fmt.Errorf("parse end: %w", err)
	}
	cliff, err := parseUnixTime(items[8])
	if err != nil {
		return vesting.Stream{}, fmt.Errorf("parse cliff: %w", err)
	}
	cancelled, err := ParseBoolean(items[9])
	if err != nil {
		return vesting.Stream{}, fmt.Errorf("parse cancelled: %w", err)
	}

	return vesting.Stream{
		ID:        id,
		Sender:    sender,
		Recipient: recipient,
		Total:     total,
		Claimed:   claimed,
		Asset:     a,
		Start:     start,
		End:       end,
		Cliff:     cliff,
		Cancelled: cancelled,
	}, nil
}

// Pool record field order in the hub contract.
const poolRecordLen = 6

// ParsePool parses a getPool result into the domain form.
func ParsePool(item StackItem) (lending.Pool, error) {
	items, err := ParseArray(item)
	if err != nil {
		return lending.Pool{}, err
	}
	if len(items) < poolRecordLen {
		return lending.Pool{}, fmt.Errorf("pool record: expected %d items, got %d", poolRecordLen, len(items))
	}

	assetCode, err := ParseString(items[0])
	if err != nil {
		return lending.Pool{}, fmt.Errorf("parse asset: %w", err)
	}
	a, err := asset.Parse(assetCode)
	if err != nil {
		return lending.Pool{}, err
	}
	liquidity, err := ParseInt64(items[1])
	if err != nil {
		return lending.Pool{}, fmt.Errorf("parse liquidity: %w", err)
	}
	borrowed, err := ParseInt64(items[2])
	if err != nil {
		return lending.Pool{}, fmt.Errorf("parse borrowed: %w", err)
	}
	supplyRate, err := ParseInt64(items[3])
	if err != nil {
		return lending.Pool{}, fmt.Errorf("parse supply rate: %w", err)
	}
	borrowRate, err := ParseInt64(items[4])
	if err != nil {
		return lending.Pool{}, fmt.Errorf("parse borrow rate: %w", err)
	}
	updatedAt, err := parseUnixTime(items[5])
	if err != nil {
		return lending.Pool{}, fmt.Errorf("parse updated at: %w", err)
	}

	return lending.Pool{
		Asset:          a,
		TotalLiquidity: liquidity,
		TotalBorrowed:  borrowed,
		SupplyRateBps:  supplyRate,
		BorrowRateBps:  borrowRate,
		UpdatedAt:      updatedAt,
	}, nil
}
