package mcp

import (
	"encoding/json"
	"fmt"
)

// jsonrpcVersion is carried on every wire message.
const jsonrpcVersion = "2.0"

// JSON-RPC 2.0 error codes used by the protocol.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 request. The ID is echoed on the response
// and is how callers correlate out-of-order replies.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a request, marshalling params in place. A marshal
// failure here is a programming error on the caller's side.
func NewRequest(id int64, method string, params interface{}) (*Request, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		raw = data
	}
	return &Request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  raw,
	}, nil
}

// Response is a JSON-RPC 2.0 response. A well-formed response carries
// exactly one of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewResponse builds a success response for the given request id.
func NewResponse(id int64, result interface{}) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Result: data}, nil
}

// NewErrorResponse builds an error response for the given request id.
func NewErrorResponse(id int64, code int, message string) *Response {
	return &Response{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// NullIDErrorResponse is the error response for a frame whose request
// id could not be recovered, e.g. one that failed to parse. JSON-RPC
// 2.0 requires a null id in that case.
type NullIDErrorResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      *int64    `json:"id"`
	Error   *RPCError `json:"error"`
}

// NewNullIDErrorResponse builds an error response carrying a null id.
func NewNullIDErrorResponse(code int, message string) *NullIDErrorResponse {
	return &NullIDErrorResponse{
		JSONRPC: jsonrpcVersion,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// RPCError is the JSON-RPC 2.0 error object: a machine-readable code
// plus a human message.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Notification is a JSON-RPC 2.0 notification. It carries no id and
// expects no response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewNotification builds a notification message.
func NewNotification(method string, params interface{}) (*Notification, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		raw = data
	}
	return &Notification{JSONRPC: jsonrpcVersion, Method: method, Params: raw}, nil
}
