package ledger

import (
	"encoding/json"
	"fmt"
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StackItem is one VM stack value in a node response.
type StackItem struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ContractParam is one invocation parameter in node wire format.
type ContractParam struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// InvokeResult is the node's reply to invokefunction.
type InvokeResult struct {
	Script      string      `json:"script"`
	State       string      `json:"state"`
	GasConsumed string      `json:"gasconsumed"`
	Exception   string      `json:"exception"`
	Stack       []StackItem `json:"stack"`
	Tx          string      `json:"tx"`
}

// ApplicationLog is the execution record of a settled transaction.
type ApplicationLog struct {
	TxID       string      `json:"txid"`
	Executions []Execution `json:"executions"`
}

// Execution is one VM run inside an application log.
type Execution struct {
	Trigger   string      `json:"trigger"`
	VMState   string      `json:"vmstate"`
	Exception string      `json:"exception"`
	Stack     []StackItem `json:"stack"`
}

// Signer declares the witness scope of a transaction signer.
type Signer struct {
	Account string `json:"account"`
	Scopes  string `json:"scopes"`
}
