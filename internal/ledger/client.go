package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"golang.org/x/time/rate"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/pkg/logger"
)

// Config holds the connection settings for a ledger node.
type Config struct {
	RPCURL       string        `env:"LEDGER_RPC_URL,default=http://localhost:20332" yaml:"rpc_url"`
	HubContract  string        `env:"LEDGER_HUB_CONTRACT" yaml:"hub_contract"`
	GasToken     string        `env:"LEDGER_GAS_TOKEN,default=0xd2a4cff31913016155e38e474a2c06d08be276cf" yaml:"gas_token"`
	StableToken  string        `env:"LEDGER_STABLE_TOKEN" yaml:"stable_token"`
	Timeout      time.Duration `env:"LEDGER_TIMEOUT,default=30s" yaml:"timeout"`
	PollInterval time.Duration `env:"LEDGER_POLL_INTERVAL,default=2s" yaml:"poll_interval"`
	PollTimeout  time.Duration `env:"LEDGER_POLL_TIMEOUT,default=90s" yaml:"poll_timeout"`
	RateLimit    float64       `env:"LEDGER_RATE_LIMIT,default=10" yaml:"rate_limit"`
}

// Client talks JSON-RPC to a ledger node. It implements Gateway.
type Client struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        Config
	log        *logger.Logger
	reqID      atomic.Int64
}

// NewClient builds a JSON-RPC client from the given config.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ledger: rpc url is required")
	}
	if cfg.HubContract == "" {
		return nil, fmt.Errorf("ledger: hub contract hash is required")
	}
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 90 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	return &Client{
		url:        cfg.RPCURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)),
		cfg:        cfg,
		log:        log,
	}, nil
}

// HubContract returns the script hash of the hub contract this client targets.
func (c *Client) HubContract() string { return c.cfg.HubContract }

// Call performs a single JSON-RPC round trip.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if params == nil {
		params = []any{}
	}
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      int(c.reqID.Add(1)),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, "ledger node unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, "read ledger response", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, "decode ledger response", err)
	}
	if rpcResp.Error != nil {
		return nil, apperr.Wrap(apperr.KindLedger, "ledger rpc error", rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// InvokeFunction calls invokefunction on the node. With signers attached the
// node signs and relays the transaction; without signers it is a read-only
// simulation.
func (c *Client) InvokeFunction(ctx context.Context, contract, method string, params []ContractParam, signers []Signer) (InvokeResult, error) {
	if params == nil {
		params = []ContractParam{}
	}
	callParams := []any{contract, method, params}
	if len(signers) > 0 {
		callParams = append(callParams, signers)
	}
	raw, err := c.Call(ctx, "invokefunction", callParams)
	if err != nil {
		return InvokeResult{}, err
	}
	var result InvokeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return InvokeResult{}, apperr.Wrap(apperr.KindLedger, "decode invoke result", err)
	}
	return result, nil
}

// GetApplicationLog fetches the execution record of a settled transaction.
func (c *Client) GetApplicationLog(ctx context.Context, txid string) (ApplicationLog, error) {
	raw, err := c.Call(ctx, "getapplicationlog", []any{txid})
	if err != nil {
		return ApplicationLog{}, err
	}
	var log ApplicationLog
	if err := json.Unmarshal(raw, &log); err != nil {
		return ApplicationLog{}, apperr.Wrap(apperr.KindLedger, "decode application log", err)
	}
	return log, nil
}

// WaitForApplicationLog polls until the transaction settles or the poll
// window closes.
func (c *Client) WaitForApplicationLog(ctx context.Context, txid string) (ApplicationLog, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		log, err := c.GetApplicationLog(ctx, txid)
		if err == nil && len(log.Executions) > 0 {
			return log, nil
		}

		select {
		case <-ctx.Done():
			return ApplicationLog{}, apperr.Wrap(apperr.KindLedger, "transaction not settled in time", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Submit signs and relays a state-changing invocation. The returned handle is
// the transaction hash; settlement is observed via AwaitConfirmation.
func (c *Client) Submit(ctx context.Context, op Operation) (Handle, error) {
	signerHash, err := addressToScriptHash(op.Signer)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "invalid signer address", err)
	}

	params := make([]ContractParam, 0, len(op.Args))
	for _, arg := range op.Args {
		p, err := toContractParam(arg)
		if err != nil {
			return "", err
		}
		params = append(params, p)
	}

	result, err := c.InvokeFunction(ctx, op.Contract, op.Method, params, []Signer{
		{Account: signerHash, Scopes: "CalledByEntry"},
	})
	if err != nil {
		return "", err
	}
	if result.State != "HALT" {
		return "", AbortError(result.Exception)
	}
	if result.Tx == "" {
		return "", apperr.New(apperr.KindLedger, "node did not relay the transaction")
	}

	c.log.WithField("tx", result.Tx).WithField("method", op.Method).Infof("submitted ledger operation")
	return Handle(result.Tx), nil
}

// AwaitConfirmation blocks until the submitted transaction settles.
func (c *Client) AwaitConfirmation(ctx context.Context, h Handle) (Confirmation, error) {
	log, err := c.WaitForApplicationLog(ctx, string(h))
	if err != nil {
		return Confirmation{}, err
	}

	exec := log.Executions[0]
	return Confirmation{
		TxRef:        log.TxID,
		Success:      exec.VMState == "HALT",
		FaultMessage: exec.Exception,
		Stack:        exec.Stack,
	}, nil
}

// Query performs a read-only invocation and returns the result stack.
func (c *Client) Query(ctx context.Context, contract, method string, args []any) ([]StackItem, error) {
	params := make([]ContractParam, 0, len(args))
	for _, arg := range args {
		p, err := toContractParam(arg)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}

	result, err := c.InvokeFunction(ctx, contract, method, params, nil)
	if err != nil {
		return nil, err
	}
	if result.State != "HALT" {
		return nil, AbortError(result.Exception)
	}
	return result.Stack, nil
}

// GetBalance reads the token balance of an address via balanceOf on the
// asset's token contract.
func (c *Client) GetBalance(ctx context.Context, addr string, a asset.Asset) (int64, error) {
	token, err := c.tokenContract(a)
	if err != nil {
		return 0, err
	}
	hash, err := addressToScriptHash(addr)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindValidation, "invalid address", err)
	}

	result, err := c.InvokeFunction(ctx, token, "balanceOf", []ContractParam{
		{Type: "Hash160", Value: hash},
	}, nil)
	if err != nil {
		return 0, err
	}
	if result.State != "HALT" || len(result.Stack) == 0 {
		return 0, apperr.New(apperr.KindLedger, "balance query failed")
	}
	return ParseInt64(result.Stack[0])
}

func (c *Client) tokenContract(a asset.Asset) (string, error) {
	switch a {
	case asset.GAS:
		return c.cfg.GasToken, nil
	case asset.USDL:
		if c.cfg.StableToken == "" {
			return "", apperr.New(apperr.KindLedger, "stable token contract not configured")
		}
		return c.cfg.StableToken, nil
	default:
		return "", apperr.Newf(apperr.KindValidation, "unsupported asset %q", a)
	}
}

func addressToScriptHash(addr string) (string, error) {
	u, err := address.StringToUint160(addr)
	if err != nil {
		return "", err
	}
	return "0x" + u.StringLE(), nil
}

func toContractParam(arg any) (ContractParam, error) {
	switch v := arg.(type) {
	case int64:
		return ContractParam{Type: "Integer", Value: strconv.FormatInt(v, 10)}, nil
	case int:
		return ContractParam{Type: "Integer", Value: strconv.Itoa(v)}, nil
	case bool:
		return ContractParam{Type: "Boolean", Value: v}, nil
	case string:
		return ContractParam{Type: "String", Value: v}, nil
	default:
		return ContractParam{}, fmt.Errorf("unsupported argument type %T", arg)
	}
}
