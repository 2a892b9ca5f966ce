package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RequestID is a request identifier: a JSON string, a JSON number, or absent.
// Numbers keep their literal text so that an id echoes back byte for byte.
type RequestID struct {
	value any // string, json.Number or nil
}

// NewRequestID wraps a string or any integer or float. Other types yield a
// null id.
func NewRequestID(v any) *RequestID {
	switch v := v.(type) {
	case string:
		return &RequestID{value: v}
	case json.Number:
		return &RequestID{value: v}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return &RequestID{value: json.Number(fmt.Sprint(v))}
	}
	return &RequestID{}
}

// String renders the id for logs and in-flight bookkeeping. A nil or null id
// renders as "".
func (id *RequestID) String() string {
	if id == nil {
		return ""
	}
	switch v := id.value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch v := v.(type) {
	case nil:
		id.value = nil
	case string, json.Number:
		id.value = v
	default:
		return fmt.Errorf("id must be a string or number, got %s", data)
	}
	return nil
}
