package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the fixed jsonrpc field value carried by every envelope.
const Version = "2.0"

// Request is the JSON-RPC request envelope.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      string         `json:"id"`
}

// NewRequest builds a request envelope for the given method and params.
func NewRequest(id, method string, params map[string]any) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
		ID:      id,
	}
}

// Response is the JSON-RPC response envelope. Exactly one of Result or
// Error is populated.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
}

// ResponseError is the error member of a response envelope.
type ResponseError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Error implements the error interface so a ResponseError can travel
// through error returns on the client side.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("rpc error %d (%s): %s", e.Code, e.Code, e.Message)
}

// NewErrorResponse builds a response envelope carrying an error.
func NewErrorResponse(id string, code ErrorCode, message string, data map[string]any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error: &ResponseError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// NewResultResponse builds a response envelope carrying a result.
func NewResultResponse(id string, result map[string]any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

// DecodeRequest parses a request envelope from raw frame bytes.
func DecodeRequest(payload []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("decode request: missing method")
	}
	return &req, nil
}

// DecodeResponse parses a response envelope from raw frame bytes.
func DecodeResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// Encode marshals the request envelope to frame bytes.
func (r *Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Encode marshals the response envelope to frame bytes.
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}
