// Package ledger is the boundary through which every balance-affecting
// operation and point-in-time state query reaches the underlying ledger.
// Lifecycle services depend on the narrow Gateway surface only; the JSON-RPC
// client and the in-memory fake are the two implementations.
package ledger

import (
	"context"

	"github.com/mailpay-labs/mailpay/internal/domain/asset"
)

// Contract method names exposed by the deployed MailPay hub contract.
const (
	MethodTransfer           = "transfer"
	MethodCreateEscrow       = "createEscrow"
	MethodReleaseEscrow      = "releaseEscrow"
	MethodCancelEscrow       = "cancelEscrow"
	MethodClaimExpiredEscrow = "claimExpiredEscrow"
	MethodCreateStream       = "createStream"
	MethodClaimVested        = "claimVested"
	MethodCancelStream       = "cancelStream"
	MethodSupply             = "supply"
	MethodWithdraw           = "withdraw"
	MethodBorrow             = "borrow"
	MethodRepay              = "repay"

	MethodGetEscrow      = "getEscrow"
	MethodGetEscrowCount = "getEscrowCount"
	MethodGetStream      = "getStream"
	MethodGetStreamCount = "getStreamCount"
	MethodGetPool        = "getPool"
)

// Operation is a state-changing contract invocation to be signed and
// submitted on behalf of the signer address.
type Operation struct {
	Contract string // target contract script hash
	Method   string
	Args     []any // int64, string or bool values
	Signer   string
}

// Handle identifies an in-flight submission, concretely the transaction
// hash returned by the node.
type Handle string

// Confirmation is the settled outcome of a submitted operation. A
// non-successful confirmation carries the contract fault message; the Stack
// holds any return values of the invoked method.
type Confirmation struct {
	TxRef        string
	Success      bool
	FaultMessage string
	Stack        []StackItem
}

// Gateway submits signed operations and answers point-in-time queries.
//
// A Submit or AwaitConfirmation transport error means the outcome is
// unknown: callers must re-query state before retrying, never retry blindly.
type Gateway interface {
	Submit(ctx context.Context, op Operation) (Handle, error)
	AwaitConfirmation(ctx context.Context, h Handle) (Confirmation, error)
	Query(ctx context.Context, contract, method string, args []any) ([]StackItem, error)
	GetBalance(ctx context.Context, addr string, a asset.Asset) (int64, error)
}
