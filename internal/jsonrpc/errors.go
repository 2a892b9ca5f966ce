package jsonrpc

import (
	"errors"
	"fmt"
)

// ErrInvalidMessage wraps every failure to decode a single inbound message.
var ErrInvalidMessage = errors.New("invalid JSON-RPC message")

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

// Standard codes from the JSON-RPC 2.0 specification.
const (
	ErrorCodeParseError     ErrorCode = -32700
	ErrorCodeInvalidRequest ErrorCode = -32600
	ErrorCodeMethodNotFound ErrorCode = -32601
	ErrorCodeInvalidParams  ErrorCode = -32602
	ErrorCodeInternalError  ErrorCode = -32603
)

// Error is the error member of a response. It also satisfies the error
// interface so handlers can return it directly.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}
