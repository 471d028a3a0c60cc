package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
)

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCClient issues JSON-RPC 2.0 calls over an instrumented client.
type RPCClient struct {
	client Client
	nextID atomic.Uint64
}

// NewRPCClient wraps client. Requests are posted to the client's base URL.
func NewRPCClient(client Client) *RPCClient {
	return &RPCClient{client: client}
}

// Call invokes method and decodes the result into result. A JSON null
// result leaves result untouched and reports found=false.
func (c *RPCClient) Call(ctx context.Context, result any, method string, params ...any) (found bool, err error) {
	if params == nil {
		params = []any{}
	}

	var resp rpcResponse
	_, err = c.client.NewRequest(
		WithAttributes(attribute.String("rpc.method", method)),
		WithResponseErrorHandler(func(statusCode int, body []byte) error {
			if statusCode != http.StatusOK {
				return fmt.Errorf("%s: unexpected status %d", method, statusCode)
			}
			return nil
		}),
	).
		SetBody(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}).
		SetResult(&resp).
		Post(ctx)
	if err != nil {
		return false, err
	}

	if resp.Error != nil {
		return false, resp.Error
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return false, fmt.Errorf("%s: decode result: %w", method, err)
	}
	return true, nil
}
