package btcrpc

import (
	"encoding/json"
	"fmt"
)

// RPCError is a protocol-level error object returned by bitcoind inside an
// otherwise well-formed JSON-RPC response.
type RPCError struct {
	// Code is the node's numeric error code, e.g. -25 for a rejected
	// transaction.
	Code int `json:"code"`

	// Message is the node's human readable description of the failure.
	Message string `json:"message"`
}

// Error returns the node's description of the failure.
//
// NOTE: This method is part of the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("bitcoin node error (code %d): %s", e.Code,
		e.Message)
}

// reply is the JSON-RPC 1.0 response envelope.
type reply struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     string          `json:"id"`
}

// ParseReply decodes a raw response body and extracts the result payload. A
// response carrying an error object yields that *RPCError so callers can
// surface the node's code and message verbatim, even when the node also
// flagged the failure at the HTTP layer.
func ParseReply(rawBody []byte) (json.RawMessage, error) {
	var resp reply
	if err := json.Unmarshal(rawBody, &resp); err != nil {
		return nil, fmt.Errorf("malformed node response %q: %w",
			rawBody, err)
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp.Result, nil
}
