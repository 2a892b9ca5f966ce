package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the value of the "jsonrpc" member.
const ProtocolVersion = "2.0"

// Message is one encoded JSON-RPC message ready for the wire.
type Message []byte

// Kind classifies a decoded message.
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	}
	return "unknown"
}

// Request is a request, or a notification when ID is nil.
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// AnyMessage is an inbound message of any kind. Decoding validates it.
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type plain AnyMessage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	msg := AnyMessage(p)
	if err := msg.validate(); err != nil {
		return err
	}
	*m = msg
	return nil
}

func (m *AnyMessage) validate() error {
	if m.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("unsupported jsonrpc version %q", m.JSONRPCVersion)
	}
	hasResult, hasError := len(m.Result) > 0, m.Error != nil
	switch {
	case m.Method != "" && (hasResult || hasError):
		return errors.New("request carries result or error")
	case m.Method == "" && hasResult && hasError:
		return errors.New("response carries both result and error")
	case m.Method == "" && !hasResult && !hasError:
		return errors.New("message has neither method nor result nor error")
	}
	return nil
}

func (m *AnyMessage) Kind() Kind {
	switch {
	case m.Method == "":
		return KindResponse
	case m.ID == nil:
		return KindNotification
	}
	return KindRequest
}

// AsRequest returns nil for responses.
func (m *AnyMessage) AsRequest() *Request {
	if m.Kind() == KindResponse {
		return nil
	}
	return &Request{JSONRPCVersion: m.JSONRPCVersion, Method: m.Method, Params: m.Params, ID: m.ID}
}

// DecodeMessage parses exactly one JSON-RPC message. Batches are rejected.
func DecodeMessage(data []byte) (*AnyMessage, error) {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return nil, fmt.Errorf("%w: empty body", ErrInvalidMessage)
	case data[0] == '[':
		return nil, fmt.Errorf("%w: batches are not supported", ErrInvalidMessage)
	}
	msg := new(AnyMessage)
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return msg, nil
}

// Encode marshals a Request, Response or any other value into a Message.
func Encode(v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: b, ID: id}, nil
}

func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}

// NewNotification builds a request without an id.
func NewNotification(method string, params any) (*Request, error) {
	n := &Request{JSONRPCVersion: ProtocolVersion, Method: method}
	if params == nil {
		return n, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	n.Params = b
	return n, nil
}
